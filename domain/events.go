package domain

// Event types published on the notification topic.
const (
	EventTaskAssigned      = "TASK_ASSIGNED"
	EventTaskStatusChanged = "TASK_STATUS_CHANGED"
)

// TaskAssignedEvent is emitted once per newly created assignment record.
type TaskAssignedEvent struct {
	Type            string `json:"type"`
	AssignmentID    string `json:"assignmentId"`
	TaskID          string `json:"taskId"`
	AssignedToUser  string `json:"assignedToUserId"`
	AssignedToEmail string `json:"assignedToEmail,omitempty"`
	AssignedToName  string `json:"assignedToName,omitempty"`
	AssignedBy      string `json:"assignedBy,omitempty"`
	AssignedAt      string `json:"assignedAt,omitempty"`
}

// TaskStatusChangedEvent is emitted when a persisted update changed the
// task's status. OldStatus always differs from NewStatus.
type TaskStatusChangedEvent struct {
	Type      string     `json:"type"`
	TaskID    string     `json:"taskId"`
	OldStatus TaskStatus `json:"oldStatus"`
	NewStatus TaskStatus `json:"newStatus"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	UpdatedAt string     `json:"updatedAt,omitempty"`
}
