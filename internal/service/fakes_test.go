package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/push"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu sync.Mutex

	rooms     map[string]*domain.Room
	messages  map[string][]domain.Message
	users     map[int64]*domain.User
	endpoints map[string]domain.PushEndpoint
	records   map[string]*domain.NotificationRecord
	counts    map[string]int
	seq       int
	clock     time.Time

	saveErr   error
	recentErr error
	roomErr   error

	// runs before RecentMessages takes the lock; set before use
	beforeRecent func(roomID string)
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		rooms:     make(map[string]*domain.Room),
		messages:  make(map[string][]domain.Message),
		users:     make(map[int64]*domain.User),
		endpoints: make(map[string]domain.PushEndpoint),
		records:   make(map[string]*domain.NotificationRecord),
		counts:    make(map[string]int),
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addRoom(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[id] = &domain.Room{ID: id, Name: name, Type: "public", CreatedAt: m.clock}
}

func (m *memStore) addUser(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &domain.User{ID: id, Username: name}
}

func (m *memStore) count(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[roomID]
}

func (m *memStore) stored(roomID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.messages[roomID]...)
}

func (m *memStore) record(userID int64, roomID string) *domain.NotificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(userID, roomID)]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// --- RoomStore ---

func (m *memStore) GetRoom(_ context.Context, id string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomErr != nil {
		return nil, m.roomErr
	}
	r, ok := m.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListRooms(_ context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		if cursor == "" || id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[limit-1]
	}
	out := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.rooms[id])
	}
	return out, next, nil
}

func (m *memStore) CreateRoom(_ context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	room.ID = "room-" + strconv.Itoa(m.seq)
	room.CreatedAt = m.clock
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

func (m *memStore) UpdateParticipantCount(_ context.Context, roomID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[roomID] = count
	return nil
}

// --- MessageStore ---

func (m *memStore) SaveMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.seq++
	m.clock = m.clock.Add(time.Second)
	msg.ID = "msg-" + strconv.Itoa(m.seq)
	msg.CreatedAt = m.clock
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], *msg)
	return nil
}

func (m *memStore) RecentMessages(_ context.Context, roomID string, limit int) ([]domain.Message, error) {
	if m.beforeRecent != nil {
		m.beforeRecent(roomID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	all := m.messages[roomID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.Message(nil), all...), nil
}

func (m *memStore) History(_ context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[roomID]
	end := len(all)
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("bad cursor")
		}
		end = n
	}
	out := make([]domain.Message, 0, limit)
	i := end - 1
	for ; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	next := ""
	if i >= 0 {
		next = strconv.Itoa(i + 1)
	}
	return out, next, nil
}

// --- UserStore ---

func (m *memStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, name string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memStore) EnsureUser(_ context.Context, id int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Username = username
		return nil
	}
	m.users[id] = &domain.User{ID: id, Username: username}
	return nil
}

func (m *memStore) IsFavorite(_ context.Context, userID int64, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	return u.HasFavorite(roomID), nil
}

func (m *memStore) AddFavorite(_ context.Context, userID int64, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if !u.HasFavorite(roomID) {
		u.FavoriteRooms = append(u.FavoriteRooms, roomID)
	}
	return nil
}

func (m *memStore) RemoveFavorite(_ context.Context, userID int64, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	kept := u.FavoriteRooms[:0]
	for _, id := range u.FavoriteRooms {
		if id != roomID {
			kept = append(kept, id)
		}
	}
	u.FavoriteRooms = kept
	return nil
}

func (m *memStore) FavoritedBy(_ context.Context, roomID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for id, u := range m.users {
		if u.HasFavorite(roomID) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memStore) ListEndpoints(_ context.Context, userID int64) ([]domain.PushEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PushEndpoint
	for _, ep := range m.endpoints {
		if ep.UserID == userID {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (m *memStore) AddEndpoint(_ context.Context, ep domain.PushEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.Endpoint] = ep
	return nil
}

func (m *memStore) RemoveEndpoint(_ context.Context, userID int64, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep, ok := m.endpoints[endpoint]; ok && ep.UserID == userID {
		delete(m.endpoints, endpoint)
	}
	return nil
}

// --- NotificationStore ---

func (m *memStore) GetOrCreateRecord(_ context.Context, userID int64, roomID string, now time.Time) (*domain.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey(userID, roomID)
	r, ok := m.records[k]
	if !ok {
		r = domain.NewNotificationRecord(userID, roomID, now)
		m.records[k] = r
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) SaveRecord(_ context.Context, rec *domain.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[recordKey(rec.UserID, rec.RoomID)] = &cp
	return nil
}

func (m *memStore) SweepRecords(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.records {
		if r.UpdatedAt.Before(cutoff) &&
			(r.LastNotificationSent == nil || r.LastNotificationSent.Before(cutoff)) &&
			(r.LastRoomVisit == nil || r.LastRoomVisit.Before(cutoff)) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// --- peers ---

type fakePeer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePeer) Send(ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePeer) ofType(typ string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// --- push ---

type fakeSender struct {
	mu    sync.Mutex
	errs  map[string]error // by endpoint
	calls []string
	last  []byte
	sent  chan string
}

func newFakeSender() *fakeSender {
	return &fakeSender{errs: make(map[string]error), sent: make(chan string, 64)}
}

func (f *fakeSender) Send(_ context.Context, ep domain.PushEndpoint, payload []byte, _ push.Options) error {
	f.mu.Lock()
	f.calls = append(f.calls, ep.Endpoint)
	f.last = payload
	err := f.errs[ep.Endpoint]
	f.mu.Unlock()

	select {
	case f.sent <- ep.Endpoint:
	default:
	}
	return err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fixture wires the services against one memStore.
type fixture struct {
	store       *memStore
	registry    *Registry
	coordinator *Coordinator
	chat        *ChatService
}

func newFixture() *fixture {
	st := newMemStore()
	reg := NewRegistry()
	coord := NewCoordinator(reg, st, st, MembershipConfig{HistoryLimit: 50})
	chat := NewChatService(reg, coord, st, st, ChatConfig{MaxMessageLength: 20})
	return &fixture{store: st, registry: reg, coordinator: coord, chat: chat}
}

func (f *fixture) connect(id string, identity domain.Identity) (*Session, *fakePeer) {
	p := &fakePeer{}
	return f.registry.Register(id, identity, p), p
}
