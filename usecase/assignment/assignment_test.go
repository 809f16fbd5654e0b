package assignment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teamtasks/backend/domain"
	infraDocstore "github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/repository"
	"github.com/teamtasks/backend/repository/docstore"
)

var (
	adminActor = &domain.Identity{UserID: "boss", Email: "boss@x.com", Role: "admin"}
	memberUser = &domain.Identity{UserID: "walter", Role: "member"}
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
	workflow    *Workflow
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

	return &testEnv{
		workflow:    New(tasks, assignments, directory, emitter, nil),
		tasks:       tasks,
		assignments: assignments,
		emitter:     emitter,
	}
}

func seedTask(t *testing.T, env *testEnv) *domain.Task {
	t.Helper()
	task := &domain.Task{
		TaskID:        uuid.NewString(),
		Title:         "Ship v1",
		Description:   "release",
		Priority:      domain.PriorityMedium,
		Status:        domain.StatusOpen,
		AssignedUsers: []domain.AssigneeRef{},
		CreatedBy:     adminActor.UserID,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, env.tasks.Put(context.Background(), task))
	return task
}

func TestAssignRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())
	_, err := env.workflow.Assign(context.Background(), uuid.NewString(), []string{"userA"}, memberUser)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestAssignBatchBounds(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory())

	_, err := env.workflow.Assign(context.Background(), uuid.NewString(), nil, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	oversized := make([]string, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = fmt.Sprintf("user%d", i)
	}
	_, err = env.workflow.Assign(context.Background(), uuid.NewString(), oversized, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestAssignExactlyMaxBatchAccepted(t *testing.T) {
	users := make([]domain.DirectoryUser, MaxBatchSize)
	ids := make([]string, MaxBatchSize)
	for i := range users {
		id := fmt.Sprintf("user%02d", i)
		users[i] = confirmedUser(id, id+"@x.com")
		ids[i] = id
	}
	env := newTestEnv(t, newFakeDirectory(users...))
	task := seedTask(t, env)

	result, err := env.workflow.Assign(context.Background(), task.TaskID, ids, adminActor)
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, result.NewAssignments)
	assert.Equal(t, MaxBatchSize, result.TotalAssignedUsers)
}

func TestAssignHappyPath(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
	)
	env := newTestEnv(t, directory)
	task := seedTask(t, env)

	result, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA", "userB"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewAssignments)
	assert.Equal(t, 2, result.TotalAssignedUsers)

	// Assignee order follows resolution order.
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, result.Task.AssignedEmails())

	records, err := env.assignments.ListByTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, task.TaskID, record.TaskID)
		assert.Equal(t, adminActor.UserID, record.AssignedBy)
		assert.NotEmpty(t, record.AssignmentID)
		assert.False(t, record.AssignedAt.IsZero())
	}

	stored, err := env.tasks.Get(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, stored.AssignedEmails())
	assert.Equal(t, adminActor.UserID, stored.UpdatedBy)

	require.Len(t, env.emitter.assigned, 2)
	assert.Equal(t, domain.EventTaskAssigned, env.emitter.assigned[0].Type)
	assert.Equal(t, "a@x.com", env.emitter.assigned[0].AssignedToEmail)
}

func TestAssignSecondCallConflicts(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)
	task := seedTask(t, env)

	_, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA"}, adminActor)
	require.NoError(t, err)

	_, err = env.workflow.Assign(context.Background(), task.TaskID, []string{"userA"}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	// No duplicate assignment rows.
	records, err := env.assignments.ListByTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAssignPartialOverlapAssignsOnlyNew(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
	)
	env := newTestEnv(t, directory)
	task := seedTask(t, env)

	_, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA"}, adminActor)
	require.NoError(t, err)

	result, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA", "userB"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewAssignments)
	assert.Equal(t, 2, result.TotalAssignedUsers)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, result.Task.AssignedEmails())
}

func TestAssignAllOrNothingValidation(t *testing.T) {
	disabled := confirmedUser("userB", "b@x.com")
	disabled.Enabled = false

	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"), disabled)
	env := newTestEnv(t, directory)
	task := seedTask(t, env)

	_, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA", "userB", "ghost"}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Contains(t, err.Error(), "userB")
	assert.Contains(t, err.Error(), "ghost")

	// Nothing was written: not even the valid candidate.
	records, listErr := env.assignments.ListByTask(context.Background(), task.TaskID)
	require.NoError(t, listErr)
	assert.Empty(t, records)

	stored, getErr := env.tasks.Get(context.Background(), task.TaskID)
	require.NoError(t, getErr)
	assert.Empty(t, stored.AssignedUsers)
	require.Len(t, env.emitter.assigned, 0)
}

func TestAssignUnconfirmedUserRejected(t *testing.T) {
	pending := confirmedUser("userA", "a@x.com")
	pending.Status = domain.UserStatusUnconfirmed

	env := newTestEnv(t, newFakeDirectory(pending))
	task := seedTask(t, env)

	_, err := env.workflow.Assign(context.Background(), task.TaskID, []string{"userA"}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestAssignTaskNotFound(t *testing.T) {
	env := newTestEnv(t, newFakeDirectory(confirmedUser("userA", "a@x.com")))
	_, err := env.workflow.Assign(context.Background(), uuid.NewString(), []string{"userA"}, adminActor)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

type failingTasks struct {
	repository.TaskRepository
	failPut bool
}

func (f *failingTasks) Put(ctx context.Context, task *domain.Task) error {
	if f.failPut {
		return domain.WrapError(domain.ErrCodeUnavailable, "task store unavailable", errors.New("write refused"))
	}
	return f.TaskRepository.Put(ctx, task)
}

// The assignment records and the assignee list live in separate collections
// with no spanning transaction. When the list update fails after the records
// were written, the records stay behind and the failure is surfaced both to
// the caller and in the log.
func TestAssignTaskWriteFailureLeavesRecords(t *testing.T) {
	directory := newFakeDirectory(confirmedUser("userA", "a@x.com"))
	env := newTestEnv(t, directory)
	task := seedTask(t, env)

	tasks := &failingTasks{TaskRepository: env.tasks}
	core, logs := observer.New(zapcore.ErrorLevel)
	workflow := New(tasks, env.assignments, directory, env.emitter, zap.New(core))

	tasks.failPut = true
	_, assignErr := workflow.Assign(context.Background(), task.TaskID, []string{"userA"}, adminActor)
	require.Error(t, assignErr)
	assert.True(t, domain.IsDomainError(assignErr, domain.ErrCodeUnavailable))

	// The records were written and survive the failed list update.
	records, err := env.assignments.ListByTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "userA", records[0].UserID)

	// The task document was never updated and no event went out.
	stored, err := env.tasks.Get(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Empty(t, stored.AssignedUsers)
	assert.Empty(t, env.emitter.assigned)

	orphanLogs := logs.FilterMessage("assignee list update failed after records were written")
	require.Equal(t, 1, orphanLogs.Len())
	assert.Equal(t, int64(1), orphanLogs.All()[0].ContextMap()["orphaned_records"])
}

func TestResolveCandidatesPreservesOrder(t *testing.T) {
	directory := newFakeDirectory(
		confirmedUser("userA", "a@x.com"),
		confirmedUser("userB", "b@x.com"),
		confirmedUser("userC", "c@x.com"),
	)
	env := newTestEnv(t, directory)

	users, err := env.workflow.ResolveCandidates(context.Background(), []string{"userC", "userA", "userB"})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "userC", users[0].UserID)
	assert.Equal(t, "userA", users[1].UserID)
	assert.Equal(t, "userB", users[2].UserID)
}
