package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/policy"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// Dispatcher decouples notification delivery from queue transitions. Both
// methods enqueue work and return; actual sending happens elsewhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, offer *models.Offer, event string)
	Broadcast(ctx context.Context, shiftID, event string)
}

// cycle tracks the frozen candidate order for one shift-open run. The order
// is never re-sorted after creation; re-opening builds a fresh cycle.
type cycle struct {
	num        int
	candidates []string
	next       int
}

// Manager owns the per-shift offer queue and the Offer lifecycle. All
// transitions for one shift serialize on that shift's lock; the expiry sweep
// takes the same lock, so exactly one of accept, decline or expire resolves
// a pending offer.
type Manager struct {
	shifts   store.ShiftStore
	staff    store.StaffDirectory
	offers   store.OfferStore
	events   store.EventStore
	policy   *policy.Policy
	dispatch Dispatcher
	logger   *zap.Logger

	// Window is the response window applied to each new offer.
	Window time.Duration
	// Now is swappable for tests.
	Now func() time.Time

	mu sync.Mutex
	// locks entries are kept for the process lifetime: evicting one races
	// with a goroutine already holding the pointer. cycles entries are
	// released when the shift fills, cancels or exhausts its list.
	locks  map[string]*sync.Mutex
	cycles map[string]*cycle
}

// NewManager wires a queue manager. A nil logger falls back to zap.NewNop.
func NewManager(shifts store.ShiftStore, staff store.StaffDirectory, offers store.OfferStore,
	events store.EventStore, pol *policy.Policy, dispatch Dispatcher,
	window time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		shifts:   shifts,
		staff:    staff,
		offers:   offers,
		events:   events,
		policy:   pol,
		dispatch: dispatch,
		logger:   logger,
		Window:   window,
		Now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		cycles:   make(map[string]*cycle),
	}
}

// shiftLock returns the mutex serializing all work for one shift id.
func (m *Manager) shiftLock(shiftID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[shiftID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[shiftID] = l
	}
	return l
}

func (m *Manager) record(ctx context.Context, shiftID, offerID, typ, detail string) {
	ev := &models.OfferEvent{
		ShiftID: shiftID,
		OfferID: offerID,
		Type:    typ,
		Detail:  detail,
		At:      m.Now(),
	}
	if err := m.events.AppendEvent(ctx, ev); err != nil {
		m.logger.Warn("failed to record offer event",
			zap.String("shift_id", shiftID), zap.String("type", typ), zap.Error(err))
	}
}

// OpenShift builds a fresh, frozen candidate list for the shift and extends
// the first offer. It refuses to start a cycle while an offer is pending.
func (m *Manager) OpenShift(ctx context.Context, shiftID string) error {
	l := m.shiftLock(shiftID)
	l.Lock()
	defer l.Unlock()

	shift, err := m.shifts.GetShift(ctx, shiftID)
	if err != nil {
		return fmt.Errorf("load shift %s: %w", shiftID, err)
	}
	if shift.Status.Terminal() {
		return ErrShiftNotOpen
	}
	if _, err := m.offers.PendingOffer(ctx, shiftID); err == nil {
		return ErrActiveOffer
	}

	roster, err := m.staff.ListByDepartment(ctx, shift.Department)
	if err != nil {
		return fmt.Errorf("load roster for %s: %w", shift.Department, err)
	}
	candidates := m.policy.BuildCandidateList(shift, roster)
	if len(candidates) == 0 {
		return ErrNoEligibleCandidates
	}

	prev := 0
	if c, ok := m.cycles[shiftID]; ok {
		prev = c.num
	}
	m.cycles[shiftID] = &cycle{num: prev + 1, candidates: candidates}
	m.logger.Info("shift opened",
		zap.String("shift_id", shiftID),
		zap.Int("candidates", len(candidates)),
		zap.Int("cycle", prev+1))

	return m.advanceLocked(ctx, shift)
}

// advanceLocked extends the next offer for the shift. The caller holds the
// shift lock. Exhausting the list records a queue_exhausted event and stops.
func (m *Manager) advanceLocked(ctx context.Context, shift *models.Shift) error {
	c, ok := m.cycles[shift.ID]
	if !ok {
		return nil
	}
	if shift.Status.Terminal() || shift.RemainingSlots <= 0 {
		return nil
	}
	if c.next >= len(c.candidates) {
		delete(m.cycles, shift.ID)
		m.record(ctx, shift.ID, "", models.EventQueueExhausted,
			fmt.Sprintf("all %d candidates offered, %d slots unfilled", len(c.candidates), shift.RemainingSlots))
		m.logger.Warn("candidate list exhausted",
			zap.String("shift_id", shift.ID),
			zap.Int("remaining_slots", shift.RemainingSlots))
		m.dispatch.Broadcast(ctx, shift.ID, models.EventQueueExhausted)
		return nil
	}

	candidateID := c.candidates[c.next]
	c.next++

	now := m.Now()
	offer := &models.Offer{
		ID:            uuid.NewString(),
		ShiftID:       shift.ID,
		CandidateID:   candidateID,
		Cycle:         c.num,
		Position:      c.next,
		Status:        models.OfferPending,
		SentAt:        now,
		ResponseDueAt: now.Add(m.Window),
	}
	if err := m.offers.CreateOffer(ctx, offer); err != nil {
		return fmt.Errorf("create offer for %s: %w", shift.ID, err)
	}

	m.record(ctx, shift.ID, offer.ID, models.EventOfferSent, "candidate "+candidateID)
	m.logger.Info("offer sent",
		zap.String("shift_id", shift.ID),
		zap.String("offer_id", offer.ID),
		zap.String("candidate_id", candidateID),
		zap.Int("position", offer.Position),
		zap.Time("due", offer.ResponseDueAt))
	m.dispatch.Dispatch(ctx, offer, models.EventOfferSent)
	return nil
}

// Respond resolves a pending offer with a staff decision. A response at or
// after the due time is rejected; the expiry sweep owns that transition.
func (m *Manager) Respond(ctx context.Context, offerID string, decision models.Decision) (*models.Offer, error) {
	offer, err := m.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("load offer %s: %w", offerID, err)
	}

	l := m.shiftLock(offer.ShiftID)
	l.Lock()
	defer l.Unlock()

	// Re-read under the lock: the sweep or a duplicate request may have
	// resolved it between the lookup and the lock.
	offer, err = m.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("load offer %s: %w", offerID, err)
	}
	if offer.Status != models.OfferPending {
		return nil, ErrOfferAlreadyResolved
	}
	now := m.Now()
	if !now.Before(offer.ResponseDueAt) {
		return nil, ErrOfferExpired
	}

	shift, err := m.shifts.GetShift(ctx, offer.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("load shift %s: %w", offer.ShiftID, err)
	}

	responded := now
	offer.RespondedAt = &responded

	switch decision {
	case models.DecisionAccept:
		offer.Status = models.OfferAccepted
		if err := m.offers.UpdateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("update offer %s: %w", offer.ID, err)
		}
		m.cancelOtherPending(ctx, shift.ID, offer.ID)
		m.creditCandidate(ctx, shift, offer.CandidateID)

		shift.RemainingSlots--
		if shift.RemainingSlots <= 0 {
			shift.RemainingSlots = 0
			shift.Status = models.ShiftFilled
		} else {
			shift.Status = models.ShiftPartial
		}
		if err := m.shifts.UpdateShift(ctx, shift); err != nil {
			return nil, fmt.Errorf("update shift %s: %w", shift.ID, err)
		}

		m.record(ctx, shift.ID, offer.ID, models.EventOfferAccepted, "candidate "+offer.CandidateID)
		m.dispatch.Dispatch(ctx, offer, models.EventOfferAccepted)
		m.logger.Info("offer accepted",
			zap.String("shift_id", shift.ID),
			zap.String("offer_id", offer.ID),
			zap.Int("remaining_slots", shift.RemainingSlots))

		if shift.Status == models.ShiftFilled {
			m.record(ctx, shift.ID, offer.ID, models.EventShiftFilled, "")
			delete(m.cycles, shift.ID)
		} else if err := m.advanceLocked(ctx, shift); err != nil {
			m.logger.Error("advance after accept failed",
				zap.String("shift_id", shift.ID), zap.Error(err))
		}
		return offer, nil

	case models.DecisionDecline:
		offer.Status = models.OfferDeclined
		if err := m.offers.UpdateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("update offer %s: %w", offer.ID, err)
		}
		m.record(ctx, shift.ID, offer.ID, models.EventOfferDeclined, "candidate "+offer.CandidateID)
		m.dispatch.Dispatch(ctx, offer, models.EventOfferDeclined)
		m.logger.Info("offer declined",
			zap.String("shift_id", shift.ID), zap.String("offer_id", offer.ID))
		if err := m.advanceLocked(ctx, shift); err != nil {
			m.logger.Error("advance after decline failed",
				zap.String("shift_id", shift.ID), zap.Error(err))
		}
		return offer, nil

	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
}

// cancelOtherPending is defensive: the single-pending invariant means there
// should be nothing to cancel, but a stray pending offer must never survive
// an accept.
func (m *Manager) cancelOtherPending(ctx context.Context, shiftID, keepID string) {
	other, err := m.offers.PendingOffer(ctx, shiftID)
	if err != nil || other.ID == keepID {
		return
	}
	other.Status = models.OfferCancelled
	if err := m.offers.UpdateOffer(ctx, other); err != nil {
		m.logger.Warn("failed to cancel stray pending offer",
			zap.String("offer_id", other.ID), zap.Error(err))
		return
	}
	m.record(ctx, shiftID, other.ID, models.EventOfferCancelled, "superseded by accept")
}

// creditCandidate updates the fairness counters that feed future scoring.
func (m *Manager) creditCandidate(ctx context.Context, shift *models.Shift, candidateID string) {
	staff, err := m.staff.GetStaff(ctx, candidateID)
	if err != nil {
		m.logger.Warn("failed to load accepting staff",
			zap.String("staff_id", candidateID), zap.Error(err))
		return
	}
	staff.AcceptedCount++
	staff.AssignedHours += policy.DurationHours(shift)
	staff.AssignedShifts = append(staff.AssignedShifts, models.ShiftInterval{
		ShiftID: shift.ID,
		Start:   shift.Start,
		End:     shift.End,
	})
	if err := m.staff.UpdateStaff(ctx, staff); err != nil {
		m.logger.Warn("failed to update staff counters",
			zap.String("staff_id", candidateID), zap.Error(err))
	}
}

// ExpireDue transitions every pending offer whose window has closed and
// advances its queue. It is idempotent: offers resolved by a concurrent
// Respond are skipped under the shift lock. Returns the number expired.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	due, err := m.offers.DuePending(ctx, m.Now(), 0)
	if err != nil {
		return 0, fmt.Errorf("list due offers: %w", err)
	}

	expired := 0
	for i := range due {
		if m.expireOne(ctx, due[i].ID, due[i].ShiftID) {
			expired++
		}
	}
	return expired, nil
}

func (m *Manager) expireOne(ctx context.Context, offerID, shiftID string) bool {
	l := m.shiftLock(shiftID)
	l.Lock()
	defer l.Unlock()

	offer, err := m.offers.GetOffer(ctx, offerID)
	if err != nil {
		m.logger.Warn("expiry sweep lost offer", zap.String("offer_id", offerID), zap.Error(err))
		return false
	}
	// Check-then-act under the shift lock.
	if offer.Status != models.OfferPending || m.Now().Before(offer.ResponseDueAt) {
		return false
	}

	offer.Status = models.OfferExpired
	if err := m.offers.UpdateOffer(ctx, offer); err != nil {
		m.logger.Error("failed to expire offer", zap.String("offer_id", offerID), zap.Error(err))
		return false
	}
	m.record(ctx, shiftID, offer.ID, models.EventOfferExpired, "candidate "+offer.CandidateID)
	m.dispatch.Dispatch(ctx, offer, models.EventOfferExpired)
	m.logger.Info("offer expired",
		zap.String("shift_id", shiftID), zap.String("offer_id", offer.ID))

	shift, err := m.shifts.GetShift(ctx, shiftID)
	if err != nil {
		m.logger.Error("failed to load shift after expiry",
			zap.String("shift_id", shiftID), zap.Error(err))
		return true
	}
	if err := m.advanceLocked(ctx, shift); err != nil {
		m.logger.Error("advance after expiry failed",
			zap.String("shift_id", shiftID), zap.Error(err))
	}
	return true
}

// CancelShift cancels the shift, its pending offer and its queue cycle.
// Already-enqueued notification jobs are left to run their course.
func (m *Manager) CancelShift(ctx context.Context, shiftID string) error {
	l := m.shiftLock(shiftID)
	l.Lock()
	defer l.Unlock()

	shift, err := m.shifts.GetShift(ctx, shiftID)
	if err != nil {
		return fmt.Errorf("load shift %s: %w", shiftID, err)
	}
	if shift.Status.Terminal() {
		return ErrShiftNotOpen
	}

	delete(m.cycles, shiftID)

	if pending, err := m.offers.PendingOffer(ctx, shiftID); err == nil {
		pending.Status = models.OfferCancelled
		if err := m.offers.UpdateOffer(ctx, pending); err != nil {
			return fmt.Errorf("cancel offer %s: %w", pending.ID, err)
		}
		m.record(ctx, shiftID, pending.ID, models.EventOfferCancelled, "shift cancelled")
		m.dispatch.Dispatch(ctx, pending, models.EventOfferCancelled)
	}

	shift.Status = models.ShiftCancelled
	if err := m.shifts.UpdateShift(ctx, shift); err != nil {
		return fmt.Errorf("update shift %s: %w", shiftID, err)
	}
	m.record(ctx, shiftID, "", models.EventShiftCancelled, "")
	m.logger.Info("shift cancelled", zap.String("shift_id", shiftID))
	return nil
}

// Status reports the current queue position and pending offer for a shift.
func (m *Manager) Status(ctx context.Context, shiftID string) (*models.QueueStatus, error) {
	l := m.shiftLock(shiftID)
	l.Lock()
	defer l.Unlock()

	shift, err := m.shifts.GetShift(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("load shift %s: %w", shiftID, err)
	}

	status := &models.QueueStatus{
		ShiftID:        shiftID,
		ShiftStatus:    shift.Status,
		RemainingSlots: shift.RemainingSlots,
	}
	if c, ok := m.cycles[shiftID]; ok {
		status.Candidates = len(c.candidates)
		status.NextPosition = c.next + 1
	}
	if pending, err := m.offers.PendingOffer(ctx, shiftID); err == nil {
		status.PendingOffer = pending
	}
	return status, nil
}

// EventsForShift exposes the audit trail for a shift.
func (m *Manager) EventsForShift(ctx context.Context, shiftID string) ([]models.OfferEvent, error) {
	return m.events.EventsForShift(ctx, shiftID)
}
