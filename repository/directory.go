package repository

import (
	"context"

	"github.com/teamtasks/backend/domain"
)

// UserDirectory is the external identity provider seen as a user directory.
// Lookups return domain.ErrUserNotFound for unknown users; transport
// failures surface as UNAVAILABLE-class errors.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*domain.DirectoryUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.DirectoryUser, error)
	// List enumerates the whole directory.
	List(ctx context.Context) ([]domain.DirectoryUser, error)
	// ListAdmins returns users holding the admin role or belonging to an
	// admin group. Implementations may enumerate the full directory; the
	// cost is O(total users) and accepted at current scale.
	ListAdmins(ctx context.Context) ([]domain.DirectoryUser, error)
}
