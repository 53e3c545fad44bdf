package repo

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"eventsphere/internal/model"
)

type memEvent struct {
	mu      sync.Mutex
	event   model.Event
	deleted bool
}

// MemoryRepository keeps everything in process memory. Each event carries its
// own mutex, so membership changes on one event never wait on another.
type MemoryRepository struct {
	mu            sync.RWMutex
	events        map[string]*memEvent
	order         []string
	registrations map[string]map[string]model.Registration
	users         map[string]model.User
	now           func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:        make(map[string]*memEvent),
		registrations: make(map[string]map[string]model.Registration),
		users:         make(map[string]model.User),
		now:           time.Now,
	}
}

func cloneEvent(e model.Event) model.Event {
	e.RegisteredUsers = slices.Clone(e.RegisteredUsers)
	if e.RegisteredUsers == nil {
		e.RegisteredUsers = []string{}
	}
	return e
}

func (m *MemoryRepository) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryRepository) MigrateUp(string) error   { return nil }
func (m *MemoryRepository) MigrateDown(string) error { return nil }

func (m *MemoryRepository) entry(id string) *memEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[id]
}

func (m *MemoryRepository) CreateEvent(_ context.Context, e *model.Event) error {
	now := m.now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.RegisteredUsers == nil {
		e.RegisteredUsers = []string{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &memEvent{event: cloneEvent(*e)}
	m.order = append(m.order, e.ID)
	return nil
}

func (m *MemoryRepository) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	ent := m.entry(id)
	if ent == nil {
		return nil, ErrEventNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.deleted {
		return nil, ErrEventNotFound
	}
	e := cloneEvent(ent.event)
	return &e, nil
}

func (m *MemoryRepository) snapshot() []model.Event {
	m.mu.RLock()
	entries := make([]*memEvent, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.events[id])
	}
	m.mu.RUnlock()

	events := make([]model.Event, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		if !ent.deleted {
			events = append(events, cloneEvent(ent.event))
		}
		ent.mu.Unlock()
	}
	return events
}

func (m *MemoryRepository) GetAllEvents(_ context.Context, filter model.EventFilter) ([]model.Event, error) {
	search := strings.ToLower(filter.Search)
	events := slices.DeleteFunc(m.snapshot(), func(e model.Event) bool {
		if filter.Category != "" && e.Category != filter.Category {
			return true
		}
		return search != "" && !strings.Contains(strings.ToLower(e.Title), search)
	})
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.Date.Compare(b.Date)
	})
	return events, nil
}

func (m *MemoryRepository) GetEventsByMember(_ context.Context, userID string) ([]model.Event, error) {
	return slices.DeleteFunc(m.snapshot(), func(e model.Event) bool {
		return !e.HasMember(userID)
	}), nil
}

func (m *MemoryRepository) UpdateEvent(_ context.Context, e *model.Event) (*model.Event, error) {
	ent := m.entry(e.ID)
	if ent == nil {
		return nil, ErrEventNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.deleted {
		return nil, ErrEventNotFound
	}
	if e.Capacity > 0 && len(ent.event.RegisteredUsers) > e.Capacity {
		return nil, ErrCapacityBelowMembers
	}

	cur := &ent.event
	cur.Title, cur.Description = e.Title, e.Description
	cur.Date, cur.Time = e.Date, e.Time
	cur.Location, cur.Category = e.Location, e.Category
	cur.Organizer, cur.ImageURL = e.Organizer, e.ImageURL
	cur.Capacity = e.Capacity
	cur.UpdatedAt = m.now()

	updated := cloneEvent(*cur)
	return &updated, nil
}

func (m *MemoryRepository) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	ent, ok := m.events[id]
	if ok {
		delete(m.events, id)
		delete(m.registrations, id)
		m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	}
	m.mu.Unlock()
	if !ok {
		return ErrEventNotFound
	}

	ent.mu.Lock()
	ent.deleted = true
	ent.mu.Unlock()
	return nil
}

func (m *MemoryRepository) AppendMemberTx(_ context.Context, eventID, userID string) (*model.Event, error) {
	ent := m.entry(eventID)
	if ent == nil {
		return nil, ErrEventNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.deleted {
		return nil, ErrEventNotFound
	}
	if ent.event.HasMember(userID) {
		return nil, ErrDuplicateRegistration
	}
	if ent.event.IsFull() {
		return nil, ErrEventFull
	}

	ent.event.RegisteredUsers = append(ent.event.RegisteredUsers, userID)
	ent.event.UpdatedAt = m.now()
	e := cloneEvent(ent.event)
	return &e, nil
}

func (m *MemoryRepository) CreateRegistration(_ context.Context, reg *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[reg.EventID]; !ok {
		return ErrEventNotFound
	}
	byUser, ok := m.registrations[reg.EventID]
	if !ok {
		byUser = make(map[string]model.Registration)
		m.registrations[reg.EventID] = byUser
	}
	if _, exists := byUser[reg.UserID]; exists {
		return ErrRegistrationExists
	}
	byUser[reg.UserID] = *reg
	return nil
}

func (m *MemoryRepository) GetRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registrations[eventID][userID]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	return &reg, nil
}

func (m *MemoryRepository) GetRegistrationsByEventID(_ context.Context, eventID string) ([]model.Registration, error) {
	m.mu.RLock()
	regs := make([]model.Registration, 0, len(m.registrations[eventID]))
	for _, reg := range m.registrations[eventID] {
		regs = append(regs, reg)
	}
	m.mu.RUnlock()

	slices.SortFunc(regs, func(a, b model.Registration) int {
		if c := a.RegistrationDate.Compare(b.RegistrationDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return regs, nil
}

func (m *MemoryRepository) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MemoryRepository) Stats(_ context.Context, now time.Time) (model.Stats, error) {
	events := m.snapshot()
	m.mu.RLock()
	s := model.Stats{TotalEvents: len(events), TotalUsers: len(m.users)}
	m.mu.RUnlock()
	for _, e := range events {
		if !e.Date.Before(now) {
			s.Upcoming++
		}
	}
	return s, nil
}
