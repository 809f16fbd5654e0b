package transport

// CreateTaskRequest carries the create payload. AssignedTo is the legacy
// single-assignee e-mail; AssignedUserIDs is the validated batch path.
type CreateTaskRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Priority        string   `json:"priority,omitempty"`
	DueDate         string   `json:"dueDate,omitempty"`
	TimeEstimate    *float64 `json:"timeEstimate,omitempty"`
	AssignedTo      string   `json:"assignedTo,omitempty"`
	AssignedUserIDs []string `json:"assignedUserIds,omitempty"`
}

// UpdateTaskRequest is a partial update; absent fields stay nil.
type UpdateTaskRequest struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Status       *string  `json:"status,omitempty"`
	Priority     *string  `json:"priority,omitempty"`
	DueDate      *string  `json:"dueDate,omitempty"`
	TimeEstimate *float64 `json:"timeEstimate,omitempty"`
	AssignedTo   *string  `json:"assignedTo,omitempty"`
}

type AssignTaskRequest struct {
	UserIDs []string `json:"userIds"`
}
