package domain

import "time"

// TaskStatus enumerates the lifecycle states of a task. Transitions are not
// restricted to any order; any status may follow any other.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
	StatusClosed     TaskStatus = "closed"
)

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusClosed:
		return true
	}
	return false
}

// TaskPriority enumerates task priorities.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is the primary work-item entity.
//
// AssignedTo is a legacy single identifier (user id or email) kept for
// backward compatibility with historical records. AssignedUsers is the
// denormalized list of current assignees and must stay in agreement with
// the Assignment collection; the assignment workflow is its only writer.
type Task struct {
	TaskID         string        `json:"taskId"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Priority       TaskPriority  `json:"priority"`
	Status         TaskStatus    `json:"status"`
	DueDate        *time.Time    `json:"dueDate,omitempty"`
	TimeEstimate   *float64      `json:"timeEstimate,omitempty"`
	AssignedTo     string        `json:"assignedTo,omitempty"`
	AssignedUsers  []AssigneeRef `json:"assignedUsers"`
	CreatedBy      string        `json:"createdBy"`
	CreatedByEmail string        `json:"createdByEmail,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	UpdatedBy      string        `json:"updatedBy,omitempty"`
}

// AssignedEmails returns the known e-mail addresses from the denormalized
// assignee list, preserving order.
func (t *Task) AssignedEmails() []string {
	if t == nil {
		return nil
	}
	emails := make([]string, 0, len(t.AssignedUsers))
	for _, ref := range t.AssignedUsers {
		if ref.Email != "" {
			emails = append(emails, ref.Email)
		}
	}
	return emails
}
