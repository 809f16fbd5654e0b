package domain

import "time"

// Assignment links one user to one task. The (TaskID, UserID) pair is
// unique: the assignment workflow filters out already-assigned users before
// writing. UserEmail and UserName are snapshots of directory attributes at
// assignment time and may go stale.
type Assignment struct {
	AssignmentID string    `json:"assignmentId"`
	TaskID       string    `json:"taskId"`
	UserID       string    `json:"userId"`
	UserEmail    string    `json:"userEmail,omitempty"`
	UserName     string    `json:"userName,omitempty"`
	AssignedBy   string    `json:"assignedBy"`
	AssignedAt   time.Time `json:"assignedAt"`
}
