package domain

import "time"

// User statuses mirrored from the directory.
const (
	UserStatusConfirmed   = "CONFIRMED"
	UserStatusUnconfirmed = "UNCONFIRMED"
)

// DirectoryUser is a user as known to the external identity directory.
type DirectoryUser struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Enabled   bool      `json:"enabled"`
	Groups    []string  `json:"groups,omitempty"`
	CreatedAt time.Time `json:"created,omitempty"`
}

// Assignable reports whether the user may receive task assignments: enabled,
// confirmed, and reachable by e-mail.
func (u *DirectoryUser) Assignable() bool {
	return u != nil && u.Enabled && u.Status == UserStatusConfirmed && u.Email != ""
}
