package domain

// adminGroups lists the group spellings that grant admin access. Both have
// been used historically; membership checks are case-sensitive.
var adminGroups = []string{"admin", "Admins"}

const RoleAdmin = "admin"

// IsAdmin reports whether the identity carries the admin role or belongs to
// one of the admin groups. It is a pure function of the identity alone.
func IsAdmin(id *Identity) bool {
	if id == nil {
		return false
	}
	if id.Role == RoleAdmin {
		return true
	}
	for _, group := range id.Groups {
		for _, admin := range adminGroups {
			if group == admin {
				return true
			}
		}
	}
	return false
}

// RequireAdmin returns ErrAdminRequired when the identity is not an admin.
func RequireAdmin(id *Identity) error {
	if !IsAdmin(id) {
		return ErrAdminRequired
	}
	return nil
}

// CanAccessTask decides read visibility: admins see everything, members see
// only tasks whose legacy assignedTo field or assignee list refers to them.
// A task with no assignees at all is visible to admins only.
func CanAccessTask(id *Identity, task *Task) bool {
	if task == nil {
		return false
	}
	if IsAdmin(id) {
		return true
	}
	if task.AssignedTo != "" && id.Matches(task.AssignedTo) {
		return true
	}
	for _, ref := range task.AssignedUsers {
		if ref.MatchedBy(id) {
			return true
		}
	}
	return false
}

// CanUpdateTask shares the access policy with CanAccessTask; which fields a
// non-admin may change is restricted by the caller, not here.
func CanUpdateTask(id *Identity, task *Task) bool {
	return CanAccessTask(id, task)
}
