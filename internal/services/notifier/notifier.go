package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/repository"
)

// Config names the topics the notifier consumes.
type Config struct {
	TopicAssigned      string
	TopicStatusChanged string
}

// Notifier consumes task change events from the notification topics,
// resolves recipient addresses, and dispatches one e-mail per recipient.
// Delivery is best-effort: per-recipient failures are logged and never
// fail the batch.
type Notifier struct {
	redis       *redislib.Client
	tasks       repository.TaskRepository
	assignments repository.AssignmentRepository
	directory   repository.UserDirectory
	mailer      Mailer
	cfg         Config
	logger      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	redis *redislib.Client,
	tasks repository.TaskRepository,
	assignments repository.AssignmentRepository,
	directory repository.UserDirectory,
	mailer Mailer,
	cfg Config,
	logger *zap.Logger,
) *Notifier {
	if cfg.TopicAssigned == "" {
		cfg.TopicAssigned = "tasks.assigned"
	}
	if cfg.TopicStatusChanged == "" {
		cfg.TopicStatusChanged = "tasks.status-changed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		redis:       redis,
		tasks:       tasks,
		assignments: assignments,
		directory:   directory,
		mailer:      mailer,
		cfg:         cfg,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start subscribes to the notification topics and consumes until Stop.
func (n *Notifier) Start() error {
	if n.redis == nil {
		return fmt.Errorf("redis client not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	pubsub := n.redis.Subscribe(ctx, n.cfg.TopicAssigned, n.cfg.TopicStatusChanged)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		return err
	}

	go func() {
		defer close(n.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.dispatch(ctx, msg.Payload)
			}
		}
	}()

	n.logger.Info("notifier started",
		zap.String("topic_assigned", n.cfg.TopicAssigned),
		zap.String("topic_status", n.cfg.TopicStatusChanged))
	return nil
}

// Stop cancels the subscription and waits for the consume loop to exit.
func (n *Notifier) Stop(ctx context.Context) {
	if n.cancel == nil {
		return
	}
	n.cancel()
	select {
	case <-n.done:
	case <-ctx.Done():
	}
	n.logger.Info("notifier stopped")
}

func (n *Notifier) dispatch(ctx context.Context, payload string) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		n.logger.Warn("invalid notification payload", zap.Error(err))
		return
	}

	switch envelope.Type {
	case domain.EventTaskAssigned:
		var event domain.TaskAssignedEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			n.logger.Warn("invalid assignment event", zap.Error(err))
			return
		}
		n.handleTaskAssigned(ctx, &event)
	case domain.EventTaskStatusChanged:
		var event domain.TaskStatusChangedEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			n.logger.Warn("invalid status change event", zap.Error(err))
			return
		}
		n.handleStatusChanged(ctx, &event)
	default:
		n.logger.Warn("unknown notification type", zap.String("type", envelope.Type))
	}
}

func (n *Notifier) handleTaskAssigned(ctx context.Context, event *domain.TaskAssignedEvent) {
	if event.TaskID == "" {
		n.logger.Warn("assignment event missing task id")
		return
	}

	task, err := n.tasks.Get(ctx, event.TaskID)
	if err != nil {
		n.logger.Warn("task lookup failed for assignment notification",
			zap.String("task_id", event.TaskID), zap.Error(err))
		return
	}

	assignee := event.AssignedToEmail
	if assignee == "" {
		assignee = event.AssignedToUser
	}
	assigneeEmail := n.resolveEmail(ctx, assignee)
	if assigneeEmail == "" {
		n.logger.Warn("no recipient for assignment notification",
			zap.String("task_id", event.TaskID),
			zap.String("assignment_id", event.AssignmentID))
		return
	}

	actorEmail := n.resolveEmail(ctx, event.AssignedBy)
	recipients := dedupe(append([]string{assigneeEmail, actorEmail}, n.adminEmails(ctx)...))

	subject := fmt.Sprintf("New Task Assignment: %s", titleOrUntitled(task))
	var b strings.Builder
	b.WriteString("A task assignment was made.\n")
	fmt.Fprintf(&b, "Assigned to: %s\n", assigneeEmail)
	if actorEmail != "" {
		fmt.Fprintf(&b, "Assigned by: %s\n", actorEmail)
	}
	b.WriteString("\n")
	b.WriteString(taskSummary(task, task.Status))

	n.deliver(event.TaskID, recipients, subject, b.String())
}

func (n *Notifier) handleStatusChanged(ctx context.Context, event *domain.TaskStatusChangedEvent) {
	if event.TaskID == "" || event.OldStatus == "" || event.NewStatus == "" {
		n.logger.Warn("status change event missing required fields")
		return
	}

	task, err := n.tasks.Get(ctx, event.TaskID)
	if err != nil {
		n.logger.Warn("task lookup failed for status notification",
			zap.String("task_id", event.TaskID), zap.Error(err))
		return
	}

	var recipients []string
	recipients = append(recipients, n.assignmentEmails(ctx, event.TaskID)...)
	recipients = append(recipients, task.AssignedEmails()...)
	if creator := n.creatorEmail(ctx, task); creator != "" {
		recipients = append(recipients, creator)
	}
	recipients = append(recipients, n.adminEmails(ctx)...)
	recipients = dedupe(recipients)

	if len(recipients) == 0 {
		n.logger.Info("no recipients for status change notification",
			zap.String("task_id", event.TaskID))
		return
	}

	subject := fmt.Sprintf("Task Status Updated: %s", titleOrUntitled(task))
	body := fmt.Sprintf("Task status changed from %s to %s.\n\n%s",
		event.OldStatus, event.NewStatus, taskSummary(task, event.NewStatus))

	n.deliver(event.TaskID, recipients, subject, body)
}

func (n *Notifier) deliver(taskID string, recipients []string, subject, body string) {
	var errs *multierror.Error
	sent := 0
	for _, to := range recipients {
		if err := n.mailer.Send(to, subject, body); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("send to %s: %w", to, err))
			continue
		}
		sent++
	}

	if err := errs.ErrorOrNil(); err != nil {
		n.logger.Warn("some notifications failed",
			zap.String("task_id", taskID),
			zap.Int("sent", sent),
			zap.Int("failed", len(errs.Errors)),
			zap.Error(err))
	}
	if sent > 0 {
		n.logger.Info("notifications sent",
			zap.String("task_id", taskID),
			zap.Int("recipients", sent))
	}
}

// resolveEmail returns the address for a mixed identifier: raw e-mail
// values pass through, anything else is looked up in the directory.
func (n *Notifier) resolveEmail(ctx context.Context, value string) string {
	if value == "" {
		return ""
	}
	if strings.Contains(value, "@") {
		return value
	}
	user, err := n.directory.GetByID(ctx, value)
	if err != nil {
		n.logger.Debug("email resolution failed", zap.String("user_id", value), zap.Error(err))
		return ""
	}
	return user.Email
}

func (n *Notifier) assignmentEmails(ctx context.Context, taskID string) []string {
	records, err := n.assignments.ListByTask(ctx, taskID)
	if err != nil {
		n.logger.Warn("assignment lookup failed", zap.String("task_id", taskID), zap.Error(err))
		return nil
	}
	var emails []string
	for _, record := range records {
		value := record.UserEmail
		if value == "" {
			value = record.UserID
		}
		if email := n.resolveEmail(ctx, value); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

func (n *Notifier) creatorEmail(ctx context.Context, task *domain.Task) string {
	if task.CreatedByEmail != "" {
		return task.CreatedByEmail
	}
	return n.resolveEmail(ctx, task.CreatedBy)
}

func (n *Notifier) adminEmails(ctx context.Context) []string {
	admins, err := n.directory.ListAdmins(ctx)
	if err != nil {
		n.logger.Warn("admin enumeration failed", zap.Error(err))
		return nil
	}
	var emails []string
	for _, admin := range admins {
		if admin.Email != "" {
			emails = append(emails, admin.Email)
		}
	}
	return emails
}

func titleOrUntitled(task *domain.Task) string {
	if task.Title == "" {
		return "Untitled"
	}
	return task.Title
}

func taskSummary(task *domain.Task, status domain.TaskStatus) string {
	dueDate := "No due date"
	if task.DueDate != nil {
		dueDate = task.DueDate.Format("2006-01-02")
	}
	priority := "Not set"
	if task.Priority != "" {
		priority = string(task.Priority)
	}
	description := "No description"
	if task.Description != "" {
		description = task.Description
	}
	return fmt.Sprintf("Task: %s\nDescription: %s\nPriority: %s\nStatus: %s\nDue Date: %s",
		titleOrUntitled(task), description, priority, status, dueDate)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
