// Package docstore implements the task and assignment repositories on top of
// the Bolt-backed document store.
package docstore

import "github.com/teamtasks/backend/internal/infrastructure/docstore"

const (
	tasksCollection       = "tasks"
	assignmentsCollection = "assignments"

	taskIndex = "task"
	userIndex = "user"
)

// Collections declares the schema expected by the repositories in this
// package; pass it to docstore.Open.
func Collections() []docstore.Collection {
	return []docstore.Collection{
		{Name: tasksCollection},
		{Name: assignmentsCollection, Indexes: []string{taskIndex, userIndex}},
	}
}
