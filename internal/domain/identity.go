package domain

import "strconv"

// Identity is the principal bound to a real-time connection. The only
// implementations are Authenticated and Guest.
type Identity interface {
	Key() string
	DisplayName() string
	IsGuest() bool
	isIdentity()
}

type Authenticated struct {
	UserID   int64
	Username string
}

func (a Authenticated) Key() string         { return "user:" + strconv.FormatInt(a.UserID, 10) }
func (a Authenticated) DisplayName() string { return a.Username }
func (Authenticated) IsGuest() bool         { return false }
func (Authenticated) isIdentity()           {}

// Guest is a connection whose token was absent or failed verification.
// Name is whatever display name the client claimed, possibly empty.
type Guest struct {
	EphemeralID string
	Name        string
}

func (g Guest) Key() string         { return "guest:" + g.EphemeralID }
func (g Guest) DisplayName() string { return g.Name }
func (Guest) IsGuest() bool         { return true }
func (Guest) isIdentity()           {}

// UserIDOf returns the store user id of an authenticated identity.
func UserIDOf(id Identity) (int64, bool) {
	if a, ok := id.(Authenticated); ok {
		return a.UserID, true
	}
	return 0, false
}
