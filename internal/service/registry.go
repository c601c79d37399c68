package service

import (
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Peer is the outbound half of a live connection.
type Peer interface {
	Send(ev domain.Event) error
}

// Session is the server-side state of one connection. Its identity is fixed
// for its lifetime; the current room lives in the Registry.
type Session struct {
	ID       string
	Identity domain.Identity

	peer Peer
	// serialises join/leave/send issued for this connection
	mu sync.Mutex
}

func (s *Session) Send(ev domain.Event) {
	if err := s.peer.Send(ev); err != nil {
		slog.Debug("session send failed", "conn", s.ID, "type", ev.Type, "err", err)
	}
}

// Registry is the process-local membership set: connection -> session,
// connection -> current room, room -> connections. A connection is in at
// most one room at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	current  map[string]string
	rooms    map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		current:  make(map[string]string),
		rooms:    make(map[string]map[string]*Session),
	}
}

func (r *Registry) Register(id string, identity domain.Identity, peer Peer) *Session {
	s := &Session{ID: id, Identity: identity, peer: peer}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Unregister drops every trace of the connection, including room membership.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID, ok := r.current[id]; ok {
		r.removeLocked(id, roomID)
	}
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) CurrentRoom(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current[id]
}

// Enter adds the session to roomID and makes it the current room. It returns
// the new member count and a snapshot of the other members.
func (r *Registry) Enter(s *Session, roomID string) (int, []*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.current[s.ID]; ok && prev != roomID {
		r.removeLocked(s.ID, prev)
	}
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]*Session)
		r.rooms[roomID] = set
	}
	set[s.ID] = s
	r.current[s.ID] = roomID

	others := make([]*Session, 0, len(set)-1)
	for id, m := range set {
		if id != s.ID {
			others = append(others, m)
		}
	}
	return len(set), others
}

// Exit removes the session from roomID. removed is false when it was not a
// member.
func (r *Registry) Exit(s *Session, roomID string) (removed bool, count int, remaining []*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return false, 0, nil
	}
	if _, ok := set[s.ID]; !ok {
		return false, len(set), nil
	}
	r.removeLocked(s.ID, roomID)

	set = r.rooms[roomID]
	remaining = make([]*Session, 0, len(set))
	for _, m := range set {
		remaining = append(remaining, m)
	}
	return true, len(set), remaining
}

func (r *Registry) removeLocked(connID, roomID string) {
	if set, ok := r.rooms[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if r.current[connID] == roomID {
		delete(r.current, connID)
	}
}

func (r *Registry) Members(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	out := make([]*Session, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// HasUserInRoom reports whether any connection of userID is currently in
// roomID.
func (r *Registry) HasUserInRoom(roomID string, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.rooms[roomID] {
		if uid, ok := domain.UserIDOf(m.Identity); ok && uid == userID {
			return true
		}
	}
	return false
}

func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
