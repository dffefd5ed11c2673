package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role names a capability set granted by the backend.
type Role string

// User is the account snapshot returned by authentication and profile
// endpoints. It is always replaced as a whole.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Roles         []Role `json:"roles"`
	EmailVerified bool   `json:"isEmailVerified"`
	Active        bool   `json:"isActive"`
	MFAEnabled    bool   `json:"mfaEnabled"`
	AccountStatus string `json:"accountStatus,omitempty"`
}

// HasRole reports whether r is in the user's role set.
func (u *User) HasRole(r Role) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = append([]Role(nil), u.Roles...)
	return &out
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type rawUser struct {
	ID            string   `json:"id"`
	MongoID       string   `json:"_id"`
	Email         string   `json:"email"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Phone         string   `json:"phone"`
	Roles         []string `json:"roles"`
	Role          string   `json:"role"`
	EmailVerified bool     `json:"isEmailVerified"`
	Active        *bool    `json:"isActive"`
	MFAEnabled    bool     `json:"mfaEnabled"`
	AccountStatus string   `json:"accountStatus"`
}

func (r rawUser) user() *User {
	u := &User{
		ID:            r.ID,
		Email:         r.Email,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Phone:         r.Phone,
		EmailVerified: r.EmailVerified,
		Active:        true,
		MFAEnabled:    r.MFAEnabled,
		AccountStatus: r.AccountStatus,
	}
	if u.ID == "" {
		u.ID = r.MongoID
	}
	if r.Active != nil {
		u.Active = *r.Active
	}

	seen := make(map[string]struct{}, len(r.Roles)+1)
	for _, name := range append(append([]string(nil), r.Roles...), r.Role) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		u.Roles = append(u.Roles, Role(name))
	}
	return u
}

// decodeUserObject requires raw to be a JSON object.
func decodeUserObject(endpoint string, raw json.RawMessage) (*User, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, parseErr(endpoint, "missing user", nil)
	}
	if trimmed[0] != '{' {
		return nil, parseErr(endpoint, "user is not an object", nil)
	}

	var ru rawUser
	if err := json.Unmarshal(trimmed, &ru); err != nil {
		return nil, parseErr(endpoint, "invalid user", err)
	}
	return ru.user(), nil
}

// DecodeUser reads a profile response: either {"user": {...}} or a bare user
// object carrying at least an id or email.
func DecodeUser(endpoint string, data []byte) (*User, error) {
	obj, body, err := object(endpoint, data)
	if err != nil {
		return nil, err
	}
	if raw, ok := obj["user"]; ok {
		return decodeUserObject(endpoint, raw)
	}
	_, hasID := obj["id"]
	_, hasMongoID := obj["_id"]
	_, hasEmail := obj["email"]
	if !hasID && !hasMongoID && !hasEmail {
		return nil, parseErr(endpoint, "missing user", nil)
	}
	return decodeUserObject(endpoint, body)
}
