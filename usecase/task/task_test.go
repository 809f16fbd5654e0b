package task

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamtasks/backend/domain"
	infraDocstore "github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/repository"
	"github.com/teamtasks/backend/repository/docstore"
	"github.com/teamtasks/backend/usecase/assignment"
)

var (
	adminActor = &domain.Identity{UserID: "boss", Email: "boss@x.com", Role: "admin"}
	memberA    = &domain.Identity{UserID: "userA", Email: "a@x.com", Role: "member"}
	memberB    = &domain.Identity{UserID: "userB", Email: "b@x.com", Role: "member"}
)

type fakeDirectory struct {
	byID map[string]domain.DirectoryUser
}

func newFakeDirectory(users ...domain.DirectoryUser) *fakeDirectory {
	byID := make(map[string]domain.DirectoryUser, len(users))
	for _, user := range users {
		byID[user.UserID] = user
	}
	return &fakeDirectory{byID: byID}
}

func (d *fakeDirectory) GetByID(_ context.Context, userID string) (*domain.DirectoryUser, error) {
	user, ok := d.byID[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (d *fakeDirectory) GetByEmail(_ context.Context, email string) (*domain.DirectoryUser, error) {
	for _, user := range d.byID {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *fakeDirectory) List(_ context.Context) ([]domain.DirectoryUser, error) {
	users := make([]domain.DirectoryUser, 0, len(d.byID))
	for _, user := range d.byID {
		users = append(users, user)
	}
	return users, nil
}

func (d *fakeDirectory) ListAdmins(_ context.Context) ([]domain.DirectoryUser, error) {
	var admins []domain.DirectoryUser
	for _, user := range d.byID {
		if user.Role == "admin" {
			admins = append(admins, user)
		}
	}
	return admins, nil
}

type fakeEmitter struct {
	mu       sync.Mutex
	assigned []*domain.TaskAssignedEvent
	status   []*domain.TaskStatusChangedEvent
}

func (e *fakeEmitter) EmitTaskAssigned(_ context.Context, event *domain.TaskAssignedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assigned = append(e.assigned, event)
	return nil
}

func (e *fakeEmitter) EmitTaskStatusChanged(_ context.Context, event *domain.TaskStatusChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = append(e.status, event)
	return nil
}

func (e *fakeEmitter) statusEvents() []*domain.TaskStatusChangedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.TaskStatusChangedEvent(nil), e.status...)
}

func confirmedUser(id, email string) domain.DirectoryUser {
	return domain.DirectoryUser{
		UserID:  id,
		Email:   email,
		Name:    id,
		Role:    "member",
		Status:  domain.UserStatusConfirmed,
		Enabled: true,
	}
}

type testEnv struct {
	uc          *UseCase
	tasks       repository.TaskRepository
	assignments repository.AssignmentRepository
	emitter     *fakeEmitter
}

func newTestEnv(t *testing.T, directory *fakeDirectory) *testEnv {
	t.Helper()
	store, err := infraDocstore.Open(filepath.Join(t.TempDir(), "tasks.db"), docstore.Collections()...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tasks := docstore.NewTaskRepository(store)
	assignments := docstore.NewAssignmentRepository(store)
	emitter := &fakeEmitter{}
	workflow := assignment.New(tasks, assignments, directory, emitter, nil)

	return &testEnv{
		uc:          New(tasks, assignments, directory, workflow, emitter, nil),
		tasks:       tasks,
		assignments: assignments,
		emitter:     emitter,
	}
}

func (env *testEnv) countTasks(t *testing.T) int {
	t.Helper()
	total := 0
	cursor := ""
	for {
		page, err := env.tasks.Scan(context.Background(), 0, cursor)
		require.NoError(t, err)
		total += len(page.Tasks)
		if page.NextCursor == "" {
			return total
		}
		cursor = page.NextCursor
	}
}

func strPtr(s string) *string { return &s }

func TestCreateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	_, err := env.uc.Create(context.Background(), CreateInput{Title: "t", Description: "d"}, memberA)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	negative := -1.5

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty title", CreateInput{Title: "   ", Description: "d"}},
		{"empty description", CreateInput{Title: "t", Description: ""}},
		{"script only title", CreateInput{Title: "<script>alert(1)</script>", Description: "d"}},
		{"bad priority", CreateInput{Title: "t", Description: "d", Priority: "urgent"}},
		{"negative estimate", CreateInput{Title: "t", Description: "d", TimeEstimate: &negative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.uc.Create(context.Background(), tt.in, adminActor)
			require.Error(t, err)
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
		})
	}
	assert.Zero(t, env.countTasks(t))
}

func TestCreateDefaultsAndImmutableFields(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:       "  Ship v1  ",
		Description: "cut the release",
	}, adminActor)
	require.NoError(t, err)

	assert.Equal(t, "Ship v1", created.Title)
	assert.Equal(t, domain.PriorityMedium, created.Priority)
	assert.Equal(t, domain.StatusOpen, created.Status)
	assert.Equal(t, adminActor.UserID, created.CreatedBy)
	assert.Equal(t, adminActor.Email, created.CreatedByEmail)
	assert.NotEmpty(t, created.TaskID)
	_, err = uuid.Parse(created.TaskID)
	assert.NoError(t, err)

	stored, err := env.tasks.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, stored.CreatedAt)
	assert.Equal(t, created.CreatedBy, stored.CreatedBy)
}

func TestCreateWithBatchAssignees(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
	)
	env := newTestEnv(t, directory)

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "Ship v1",
		Description:     "cut the release",
		AssignedUserIDs: []string{"userA", "userB"},
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, created.AssignedEmails())

	records, err := env.assignments.ListByTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, env.emitter.assigned, 2)
}

func TestCreateDeduplicatesRepeatedAssignees(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "Ship v1",
		Description:     "cut the release",
		AssignedUserIDs: []string{"userA", "userA"},
	}, adminActor)
	require.NoError(t, err)

	// One record and one assignee ref per user, however often the request
	// names them.
	records, err := env.assignments.ListByTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "userA", records[0].UserID)

	assert.Equal(t, []string{"a@x.com"}, created.AssignedEmails())
	require.Len(t, env.emitter.assigned, 1)
}

func TestCreateBadBatchCreatesNothing(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	_, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "Ship v1",
		Description:     "cut the release",
		AssignedUserIDs: []string{"userA", "ghost"},
	}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Contains(t, err.Error(), "ghost")

	assert.Zero(t, env.countTasks(t))
}

func TestCreateLegacyAssigneeBestEffort(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	// The e-mail resolves to nobody; the task is still created, unassigned.
	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:       "Ship v1",
		Description: "cut the release",
		AssignedTo:  "nobody@x.com",
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "nobody@x.com", created.AssignedTo)
	assert.Empty(t, created.AssignedUsers)

	records, err := env.assignments.ListByTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCreateLegacyAssigneeResolved(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:       "Ship v1",
		Description: "cut the release",
		AssignedTo:  "a@x.com",
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, created.AssignedEmails())

	records, err := env.assignments.ListByTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "userA", records[0].UserID)
}

func TestGetRejectsMalformedID(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	_, err := env.uc.Get(context.Background(), "not-a-uuid", adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestGetDeniesUnassignedMember(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(),
		CreateInput{Title: "t", Description: "d"}, adminActor)
	require.NoError(t, err)

	// A well-formed id the member may not see is an access error, not a
	// not-found.
	_, err = env.uc.Get(context.Background(), created.TaskID, memberA)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestGetAnnotatesLegacyAssignee(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	// Seed a task written before assignment records existed.
	task := &domain.Task{
		TaskID:      uuid.NewString(),
		Title:       "legacy",
		Description: "d",
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusOpen,
		AssignedTo:  "a@x.com",
		CreatedBy:   adminActor.UserID,
	}
	require.NoError(t, env.tasks.Put(context.Background(), task))

	got, err := env.uc.Get(context.Background(), task.TaskID, memberA)
	require.NoError(t, err)
	require.Len(t, got.AssignedUsers, 1)
	assert.Equal(t, "a@x.com", got.AssignedUsers[0].Email)
}

func TestUpdateMemberStatusOnly(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "t",
		Description:     "d",
		AssignedUserIDs: []string{"userA"},
	}, adminActor)
	require.NoError(t, err)

	// Mixing status with any other field is rejected for members.
	_, err = env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Status: strPtr("in-progress"),
		Title:  strPtr("renamed"),
	}, memberA)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))

	updated, err := env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Status: strPtr("in-progress"),
	}, memberA)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	assert.Equal(t, memberA.UserID, updated.UpdatedBy)
}

func TestUpdateUnassignedMemberDenied(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(),
		CreateInput{Title: "t", Description: "d"}, adminActor)
	require.NoError(t, err)

	_, err = env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Status: strPtr("completed"),
	}, memberA)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestUpdateEmptyPayloadRejected(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	_, err := env.uc.Update(context.Background(), uuid.NewString(), UpdateInput{}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestUpdateEmitsOneStatusEvent(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(),
		CreateInput{Title: "t", Description: "d"}, adminActor)
	require.NoError(t, err)

	_, err = env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Status: strPtr("in-progress"),
	}, adminActor)
	require.NoError(t, err)

	events := env.emitter.statusEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTaskStatusChanged, events[0].Type)
	assert.Equal(t, domain.StatusOpen, events[0].OldStatus)
	assert.Equal(t, domain.StatusInProgress, events[0].NewStatus)
	assert.Equal(t, adminActor.UserID, events[0].UpdatedBy)
}

func TestUpdateSameStatusEmitsNothing(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(),
		CreateInput{Title: "t", Description: "d"}, adminActor)
	require.NoError(t, err)

	_, err = env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Status: strPtr("open"),
	}, adminActor)
	require.NoError(t, err)
	assert.Empty(t, env.emitter.statusEvents())
}

func TestUpdateNonStatusFieldsEmitNothing(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	created, err := env.uc.Create(context.Background(),
		CreateInput{Title: "t", Description: "d"}, adminActor)
	require.NoError(t, err)

	updated, err := env.uc.Update(context.Background(), created.TaskID, UpdateInput{
		Title:    strPtr("renamed"),
		Priority: strPtr("high"),
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	assert.Empty(t, env.emitter.statusEvents())
}

func TestDeleteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	_, err := env.uc.Delete(context.Background(), uuid.NewString(), memberA)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestDeleteCascadesAssignments(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
	)
	env := newTestEnv(t, directory)

	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "t",
		Description:     "d",
		AssignedUserIDs: []string{"userA", "userB"},
	}, adminActor)
	require.NoError(t, err)

	result, err := env.uc.Delete(context.Background(), created.TaskID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, created.TaskID, result.TaskID)
	assert.Equal(t, 2, result.AssignmentsDeleted)

	_, err = env.tasks.Get(context.Background(), created.TaskID)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	records, err := env.assignments.ListByTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListMemberSeesAssignedAndLegacyTasks(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	assigned, err := env.uc.Create(context.Background(), CreateInput{
		Title:           "assigned",
		Description:     "d",
		AssignedUserIDs: []string{"userA"},
	}, adminActor)
	require.NoError(t, err)

	legacy := &domain.Task{
		TaskID:      uuid.NewString(),
		Title:       "legacy",
		Description: "d",
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusOpen,
		AssignedTo:  "a@x.com",
		CreatedBy:   adminActor.UserID,
	}
	require.NoError(t, env.tasks.Put(context.Background(), legacy))

	_, err = env.uc.Create(context.Background(),
		CreateInput{Title: "unrelated", Description: "d"}, adminActor)
	require.NoError(t, err)

	result, err := env.uc.List(context.Background(), 0, "", memberA)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 2)

	ids := map[string]bool{}
	for _, task := range result.Tasks {
		ids[task.TaskID] = true
	}
	assert.True(t, ids[assigned.TaskID])
	assert.True(t, ids[legacy.TaskID])
}

func TestListMemberDeduplicatesLegacyOverlap(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)

	// Both the legacy field and an assignment record point at the member.
	created, err := env.uc.Create(context.Background(), CreateInput{
		Title:       "t",
		Description: "d",
		AssignedTo:  "a@x.com",
	}, adminActor)
	require.NoError(t, err)

	result, err := env.uc.List(context.Background(), 0, "", memberA)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, created.TaskID, result.Tasks[0].TaskID)
}

func TestListAdminPages(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	for i := 0; i < 5; i++ {
		_, err := env.uc.Create(context.Background(),
			CreateInput{Title: "t", Description: "d"}, adminActor)
		require.NoError(t, err)
	}

	first, err := env.uc.List(context.Background(), 3, "", adminActor)
	require.NoError(t, err)
	assert.Len(t, first.Tasks, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := env.uc.List(context.Background(), 3, first.NextCursor, adminActor)
	require.NoError(t, err)
	assert.Len(t, second.Tasks, 2)
	assert.Empty(t, second.NextCursor)
}

// TestTaskAssignmentLifecycle walks a task from creation through assignment,
// a member status change, and deletion, checking the data a client sees at
// each step.
func TestTaskAssignmentLifecycle(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
	)
	env := newTestEnv(t, directory)
	ctx := context.Background()

	created, err := env.uc.Create(ctx, CreateInput{
		Title:       "Ship v1",
		Description: "cut the release",
		Priority:    "high",
	}, adminActor)
	require.NoError(t, err)

	assignResult, err := env.uc.Assign(ctx, created.TaskID, []string{"userA", "userB"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, assignResult.NewAssignments)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, assignResult.Task.AssignedEmails())

	// Member A, now assigned, can read and move the task.
	got, err := env.uc.Get(ctx, created.TaskID, memberA)
	require.NoError(t, err)
	assert.Equal(t, "Ship v1", got.Title)

	updated, err := env.uc.Update(ctx, created.TaskID, UpdateInput{
		Status: strPtr("in-progress"),
	}, memberA)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)

	events := env.emitter.statusEvents()
	require.Len(t, events, 1)
	assert.Equal(t, created.TaskID, events[0].TaskID)

	// Member B sees the task in their list too.
	listed, err := env.uc.List(ctx, 0, "", memberB)
	require.NoError(t, err)
	require.Len(t, listed.Tasks, 1)

	deleted, err := env.uc.Delete(ctx, created.TaskID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted.AssignmentsDeleted)

	_, err = env.uc.Get(ctx, created.TaskID, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}
