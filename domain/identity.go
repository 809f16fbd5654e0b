package domain

// Identity is the resolved, normalized representation of the caller derived
// from verified request claims. It is built per request and never persisted.
//
// Assignment data has been written under different identifier schemes over
// the system's life (provider username, raw subject, e-mail), so every
// comparison against stored identifiers goes through Matches rather than
// equality on any single field.
type Identity struct {
	// UserID is the primary matching key: the provider username when
	// present, otherwise the subject id.
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role"`
	Groups   []string `json:"groups,omitempty"`
}

// AlternateIDs returns every identifier form that may refer to this identity
// in stored data.
func (i *Identity) AlternateIDs() []string {
	if i == nil {
		return nil
	}
	ids := make([]string, 0, 4)
	for _, candidate := range []string{i.UserID, i.Username, i.Subject, i.Email} {
		if candidate == "" {
			continue
		}
		seen := false
		for _, existing := range ids {
			if existing == candidate {
				seen = true
				break
			}
		}
		if !seen {
			ids = append(ids, candidate)
		}
	}
	return ids
}

// Matches reports whether candidate is one of this identity's alternate ids.
func (i *Identity) Matches(candidate string) bool {
	if i == nil || candidate == "" {
		return false
	}
	for _, id := range i.AlternateIDs() {
		if id == candidate {
			return true
		}
	}
	return false
}
