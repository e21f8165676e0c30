package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/policy"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeDispatcher struct {
	mu         sync.Mutex
	events     []string
	broadcasts []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, offer *models.Offer, event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event+":"+offer.CandidateID)
}

func (f *fakeDispatcher) Broadcast(_ context.Context, shiftID, event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event+":"+shiftID)
}

func (f *fakeDispatcher) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fixture struct {
	manager  *Manager
	mem      *store.Memory
	clock    *testClock
	dispatch *fakeDispatcher
}

// newFixture seeds an ICU shift and three candidates whose seniority fixes
// the offer order as ann, ben, cam.
func newFixture(t *testing.T, requiredStaff int) *fixture {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedShift(models.Shift{
		ID:             "s1",
		Department:     "ICU",
		Start:          time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC),
		RequiredStaff:  requiredStaff,
		RemainingSlots: requiredStaff,
		Status:         models.ShiftOpen,
	})
	for id, seniority := range map[string]float64{"ann": 9, "ben": 6, "cam": 3} {
		mem.SeedStaff(models.StaffMember{
			ID: id, Name: id, Department: "ICU",
			MaxHours: 80, SeniorityYears: seniority,
			Contacts: map[models.Channel]string{models.ChannelPush: "tok-" + id},
		})
	}

	clock := newTestClock()
	dispatch := &fakeDispatcher{}
	pol := policy.New(policy.Weights{Seniority: 1})
	manager := NewManager(mem, mem, mem, mem, pol, dispatch, 15*time.Minute, nil)
	manager.Now = clock.Now
	return &fixture{manager: manager, mem: mem, clock: clock, dispatch: dispatch}
}

func (f *fixture) pending(t *testing.T) *models.Offer {
	t.Helper()
	offer, err := f.mem.PendingOffer(context.Background(), "s1")
	require.NoError(t, err)
	return offer
}

func (f *fixture) countPending(t *testing.T) int {
	t.Helper()
	_, err := f.mem.PendingOffer(context.Background(), "s1")
	if err == store.ErrNotFound {
		return 0
	}
	require.NoError(t, err)
	return 1
}

func TestOpenShiftOffersHighestPriorityFirst(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	offer := f.pending(t)
	assert.Equal(t, "ann", offer.CandidateID)
	assert.Equal(t, 1, offer.Position)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), offer.ResponseDueAt)
}

func TestAcceptRoundTrip(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	offer := f.pending(t)
	resolved, err := f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, resolved.Status)
	require.NotNil(t, resolved.RespondedAt)

	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftFilled, shift.Status)
	assert.Equal(t, 0, shift.RemainingSlots)
	assert.Equal(t, 0, f.countPending(t))

	// Acceptance feeds the fairness counters.
	ann, err := f.mem.GetStaff(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, ann.AcceptedCount)
	assert.Equal(t, 8.0, ann.AssignedHours)
	require.Len(t, ann.AssignedShifts, 1)
	assert.Equal(t, "s1", ann.AssignedShifts[0].ShiftID)
}

func TestAcceptedShiftBlocksOverlappingOffer(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.mem.SeedShift(models.Shift{
		ID:             "s2",
		Department:     "ICU",
		Start:          time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC),
		RequiredStaff:  1,
		RemainingSlots: 1,
		Status:         models.ShiftOpen,
	})

	require.NoError(t, f.manager.OpenShift(ctx, "s1"))
	offer := f.pending(t)
	require.Equal(t, "ann", offer.CandidateID)
	_, err := f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	require.NoError(t, err)

	// ann now works 20:00-04:00, so the 22:00-06:00 shift skips her.
	require.NoError(t, f.manager.OpenShift(ctx, "s2"))
	next, err := f.mem.PendingOffer(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "ben", next.CandidateID)
	assert.Equal(t, 1, next.Position)
}

func TestDeclineAdvancesToNextCandidate(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	first := f.pending(t)
	require.Equal(t, "ann", first.CandidateID)

	_, err := f.manager.Respond(ctx, first.ID, models.DecisionDecline)
	require.NoError(t, err)

	second := f.pending(t)
	assert.Equal(t, "ben", second.CandidateID)
	assert.Equal(t, 2, second.Position)

	_, err = f.manager.Respond(ctx, second.ID, models.DecisionAccept)
	require.NoError(t, err)

	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftFilled, shift.Status)
	assert.Equal(t, 0, f.countPending(t))
}

func TestTwoSlotShiftKeepsOffering(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	first := f.pending(t)
	_, err := f.manager.Respond(ctx, first.ID, models.DecisionAccept)
	require.NoError(t, err)

	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftPartial, shift.Status)
	assert.Equal(t, 1, shift.RemainingSlots)

	second := f.pending(t)
	assert.Equal(t, "ben", second.CandidateID)

	_, err = f.manager.Respond(ctx, second.ID, models.DecisionAccept)
	require.NoError(t, err)

	shift, err = f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftFilled, shift.Status)
	assert.Equal(t, 0, f.countPending(t))
}

func TestRespondIsIdempotent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	offer := f.pending(t)
	_, err := f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	require.NoError(t, err)

	_, err = f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	assert.ErrorIs(t, err, ErrOfferAlreadyResolved)

	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, shift.RemainingSlots)
}

func TestRespondAtDueTimeIsExpired(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	offer := f.pending(t)
	f.clock.Advance(15 * time.Minute) // now == response_due_at exactly

	_, err := f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	assert.ErrorIs(t, err, ErrOfferExpired)

	// No state change: the expiry sweep owns the transition.
	current, err := f.mem.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferPending, current.Status)
}

func TestAtMostOnePendingOfferThroughout(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	assert.Equal(t, 1, f.countPending(t))

	offer := f.pending(t)
	_, err := f.manager.Respond(ctx, offer.ID, models.DecisionDecline)
	require.NoError(t, err)
	assert.Equal(t, 1, f.countPending(t))

	offer = f.pending(t)
	_, err = f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, 0, f.countPending(t))
}

func TestOpenShiftRejectsActiveOffer(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	err := f.manager.OpenShift(ctx, "s1")
	assert.ErrorIs(t, err, ErrActiveOffer)
}

func TestOpenShiftNoEligibleCandidates(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	// Everyone on leave.
	for _, id := range []string{"ann", "ben", "cam"} {
		staff, err := f.mem.GetStaff(ctx, id)
		require.NoError(t, err)
		staff.OnLeave = true
		require.NoError(t, f.mem.UpdateStaff(ctx, staff))
	}

	err := f.manager.OpenShift(ctx, "s1")
	assert.ErrorIs(t, err, ErrNoEligibleCandidates)
	assert.Equal(t, 0, f.countPending(t))
}

func TestQueueExhaustedAfterAllDecline(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	for i := 0; i < 3; i++ {
		offer := f.pending(t)
		_, err := f.manager.Respond(ctx, offer.ID, models.DecisionDecline)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, f.countPending(t))
	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftOpen, shift.Status)

	events, err := f.mem.EventsForShift(ctx, "s1")
	require.NoError(t, err)
	var exhausted bool
	for _, ev := range events {
		if ev.Type == models.EventQueueExhausted {
			exhausted = true
		}
	}
	assert.True(t, exhausted, "expected a queue_exhausted event")
	assert.Contains(t, f.dispatch.broadcasts, models.EventQueueExhausted+":s1")
}

func TestCandidateOrderFrozenPerCycle(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	// Bumping cam's seniority mid-cycle must not reorder the queue.
	cam, err := f.mem.GetStaff(ctx, "cam")
	require.NoError(t, err)
	cam.SeniorityYears = 99
	require.NoError(t, f.mem.UpdateStaff(ctx, cam))

	var offered []string
	for i := 0; i < 3; i++ {
		offer := f.pending(t)
		offered = append(offered, offer.CandidateID)
		_, err := f.manager.Respond(ctx, offer.ID, models.DecisionDecline)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"ann", "ben", "cam"}, offered)
}

func TestCancelShift(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	offer := f.pending(t)
	require.NoError(t, f.manager.CancelShift(ctx, "s1"))

	cancelled, err := f.mem.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferCancelled, cancelled.Status)

	shift, err := f.mem.GetShift(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftCancelled, shift.Status)

	// Late responses against the cancelled offer are conflicts.
	_, err = f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	assert.ErrorIs(t, err, ErrOfferAlreadyResolved)

	// And the queue stays halted.
	n, err := f.manager.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, f.countPending(t))
}

func TestCycleStateReleasedOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))
	require.NoError(t, f.manager.CancelShift(ctx, "s1"))

	assert.Empty(t, f.manager.cycles)
	status, err := f.manager.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, status.Candidates)
}

func TestCycleStateReleasedOnFillAndExhaustion(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	require.NoError(t, f.manager.OpenShift(ctx, "s1"))
	offer := f.pending(t)
	_, err := f.manager.Respond(ctx, offer.ID, models.DecisionAccept)
	require.NoError(t, err)
	assert.Empty(t, f.manager.cycles, "filled shift keeps no cycle state")

	f.mem.SeedShift(models.Shift{
		ID: "s2", Department: "ICU",
		Start:          time.Date(2025, 6, 3, 20, 0, 0, 0, time.UTC),
		End:            time.Date(2025, 6, 4, 4, 0, 0, 0, time.UTC),
		RequiredStaff:  1,
		RemainingSlots: 1,
		Status:         models.ShiftOpen,
	})
	require.NoError(t, f.manager.OpenShift(ctx, "s2"))
	for i := 0; i < 3; i++ {
		pending, err := f.mem.PendingOffer(ctx, "s2")
		require.NoError(t, err)
		_, err = f.manager.Respond(ctx, pending.ID, models.DecisionDecline)
		require.NoError(t, err)
	}
	assert.Empty(t, f.manager.cycles, "exhausted list keeps no cycle state")
}

func TestStatusReportsPendingOffer(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.manager.OpenShift(ctx, "s1"))

	status, err := f.manager.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ShiftOpen, status.ShiftStatus)
	assert.Equal(t, 3, status.Candidates)
	require.NotNil(t, status.PendingOffer)
	assert.Equal(t, "ann", status.PendingOffer.CandidateID)

	dispatched := f.dispatch.all()
	assert.Equal(t, []string{models.EventOfferSent + ":ann"}, dispatched)
}
