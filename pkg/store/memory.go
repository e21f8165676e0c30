package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

// Memory is an in-process implementation of every store interface. It backs
// demo mode and tests; production deployments use the gorm-backed stores.
type Memory struct {
	mu      sync.Mutex
	shifts  map[string]models.Shift
	staff   map[string]models.StaffMember
	offers  map[string]models.Offer
	jobs    map[string]models.NotificationJob
	events  []models.OfferEvent
	eventID uint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		shifts: make(map[string]models.Shift),
		staff:  make(map[string]models.StaffMember),
		offers: make(map[string]models.Offer),
		jobs:   make(map[string]models.NotificationJob),
	}
}

// SeedShift inserts or replaces a shift record.
func (m *Memory) SeedShift(shift models.Shift) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[shift.ID] = shift
}

// SeedStaff inserts or replaces a staff record.
func (m *Memory) SeedStaff(staff models.StaffMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[staff.ID] = staff
}

func (m *Memory) GetShift(_ context.Context, id string) (*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift, ok := m.shifts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &shift, nil
}

func (m *Memory) UpdateShift(_ context.Context, shift *models.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[shift.ID]; !ok {
		return ErrNotFound
	}
	m.shifts[shift.ID] = *shift
	return nil
}

func (m *Memory) GetStaff(_ context.Context, id string) (*models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	staff, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &staff, nil
}

func (m *Memory) ListByDepartment(_ context.Context, department string) ([]models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StaffMember
	for _, staff := range m.staff {
		if staff.Department == department {
			out = append(out, staff)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateStaff(_ context.Context, staff *models.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[staff.ID]; !ok {
		return ErrNotFound
	}
	m.staff[staff.ID] = *staff
	return nil
}

func (m *Memory) CreateOffer(_ context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ID] = *offer
	return nil
}

func (m *Memory) GetOffer(_ context.Context, id string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offer, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &offer, nil
}

func (m *Memory) UpdateOffer(_ context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[offer.ID]; !ok {
		return ErrNotFound
	}
	m.offers[offer.ID] = *offer
	return nil
}

func (m *Memory) PendingOffer(_ context.Context, shiftID string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, offer := range m.offers {
		if offer.ShiftID == shiftID && offer.Status == models.OfferPending {
			o := offer
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DuePending(_ context.Context, now time.Time, limit int) ([]models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Offer
	for _, offer := range m.offers {
		if offer.Status == models.OfferPending && !offer.ResponseDueAt.After(now) {
			due = append(due, offer)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ResponseDueAt.Before(due[j].ResponseDueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) EnqueueJob(_ context.Context, job *models.NotificationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) ClaimDue(_ context.Context, now time.Time, limit int) ([]models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.NotificationJob
	for _, job := range m.jobs {
		if job.Status == models.JobQueued && !job.NextRetryAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = models.JobSending
		m.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

func (m *Memory) UpdateJob(_ context.Context, job *models.NotificationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*models.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (m *Memory) AppendEvent(_ context.Context, event *models.OfferEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventID++
	event.ID = m.eventID
	m.events = append(m.events, *event)
	return nil
}

func (m *Memory) EventsForShift(_ context.Context, shiftID string) ([]models.OfferEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OfferEvent
	for _, event := range m.events {
		if event.ShiftID == shiftID {
			out = append(out, event)
		}
	}
	return out, nil
}
