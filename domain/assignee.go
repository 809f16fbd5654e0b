package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AssigneeRef is the canonical form of one entry in a task's assignee list.
// Historical data mixes two shapes: bare identifier strings (a user id or an
// e-mail address) and full records with userId/userEmail/userName. Both
// decode into this single type so that no other code has to branch on shape.
type AssigneeRef struct {
	ID         string     `json:"userId,omitempty"`
	Email      string     `json:"userEmail,omitempty"`
	Name       string     `json:"userName,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
}

// assigneeRecord mirrors the stored object shape without the custom codec.
type assigneeRecord struct {
	ID         string     `json:"userId,omitempty"`
	Email      string     `json:"userEmail,omitempty"`
	Name       string     `json:"userName,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
}

// AssigneeFromString canonicalizes a bare stored identifier. Identifiers
// containing '@' are treated as e-mail addresses, anything else as user ids.
func AssigneeFromString(raw string) AssigneeRef {
	if strings.Contains(raw, "@") {
		return AssigneeRef{Email: raw}
	}
	return AssigneeRef{ID: raw}
}

// AssigneeFromEmail builds a plain e-mail entry, the shape written by the
// assignment workflow into Task.AssignedUsers.
func AssigneeFromEmail(email string) AssigneeRef {
	return AssigneeRef{Email: email}
}

func (a *AssigneeRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*a = AssigneeFromString(raw)
		return nil
	}
	var rec assigneeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*a = AssigneeRef(rec)
	return nil
}

// MarshalJSON writes a bare string when only the e-mail (or only the id) is
// known, preserving the legacy stored shape, and a full record otherwise.
func (a AssigneeRef) MarshalJSON() ([]byte, error) {
	if a.Name == "" && a.AssignedAt == nil {
		if a.Email != "" && a.ID == "" {
			return json.Marshal(a.Email)
		}
		if a.ID != "" && a.Email == "" {
			return json.Marshal(a.ID)
		}
	}
	return json.Marshal(assigneeRecord(a))
}

// MatchedBy reports whether this entry refers to the given identity. Both
// the id and the e-mail are checked against the identity's alternate id set;
// equality against a single field is never sufficient with mixed-shape data.
func (a AssigneeRef) MatchedBy(id *Identity) bool {
	return id.Matches(a.ID) || id.Matches(a.Email)
}
