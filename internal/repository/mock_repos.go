package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// MockPersonRepository is a hand-written, in-memory PersonRepository for tests.
type MockPersonRepository struct {
	mu        sync.RWMutex
	addresses map[string]map[domain.Channel]string

	// Optional error override, set in tests to simulate failure paths.
	Err error
}

func NewMockPersonRepository() *MockPersonRepository {
	return &MockPersonRepository{addresses: make(map[string]map[domain.Channel]string)}
}

// Add registers address as personID's contact on ch.
func (m *MockPersonRepository) Add(personID string, ch domain.Channel, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addresses[personID] == nil {
		m.addresses[personID] = make(map[domain.Channel]string)
	}
	m.addresses[personID][ch] = address
}

func (m *MockPersonRepository) GetContactAddress(_ context.Context, personID string, ch domain.Channel) (domain.ContactAddress, error) {
	if m.Err != nil {
		return domain.ContactAddress{}, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.addresses[personID][ch]
	if !ok {
		return domain.ContactAddress{}, fmt.Errorf("person %s: %w", personID, domain.ErrNotFound)
	}
	return domain.ContactAddress{Address: addr, Kind: domain.AddressKindFor(ch)}, nil
}

// MockScheduleRepository is a hand-written, in-memory ScheduleRepository for tests.
type MockScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]domain.ReminderSchedule
	marks     int

	MarkErr error
}

func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{schedules: make(map[string]domain.ReminderSchedule)}
}

func (m *MockScheduleRepository) Add(s domain.ReminderSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
}

func (m *MockScheduleRepository) Get(id string) (domain.ReminderSchedule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	return s, ok
}

// Marks counts MarkReminderSent calls that found their schedule.
func (m *MockScheduleRepository) Marks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks
}

func (m *MockScheduleRepository) MarkReminderSent(_ context.Context, id string, sentAt time.Time) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	m.marks++
	if s.ReminderSentAt == nil {
		at := sentAt
		s.ReminderSentAt = &at
		m.schedules[id] = s
	}
	return nil
}

func (m *MockScheduleRepository) FindDueReminders(_ context.Context, until time.Time, limit int) ([]domain.ReminderSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ReminderSchedule
	for _, s := range m.schedules {
		if s.ReminderSentAt == nil && !s.StartsAt.After(until) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockDeadLetterRepository is a hand-written, in-memory DeadLetterRepository for tests.
type MockDeadLetterRepository struct {
	mu      sync.RWMutex
	records []domain.DeadLetterRecord

	InsertErr error
}

func NewMockDeadLetterRepository() *MockDeadLetterRepository {
	return &MockDeadLetterRepository{}
}

func (m *MockDeadLetterRepository) Insert(_ context.Context, rec domain.DeadLetterRecord) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.CorrelationID == rec.CorrelationID && r.FailureTime.Equal(rec.FailureTime) {
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MockDeadLetterRepository) List(_ context.Context, limit int) ([]domain.DeadLetterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DeadLetterRecord, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		out = append(out, m.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Records returns every stored record in insertion order.
func (m *MockDeadLetterRepository) Records() []domain.DeadLetterRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.DeadLetterRecord(nil), m.records...)
}

var (
	_ PersonRepository     = (*MockPersonRepository)(nil)
	_ ScheduleRepository   = (*MockScheduleRepository)(nil)
	_ DeadLetterRepository = (*MockDeadLetterRepository)(nil)
)
