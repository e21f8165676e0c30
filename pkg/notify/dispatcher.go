package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// Dispatcher fans an offer event out into per-channel NotificationJobs.
// Enqueueing is the whole job: sending happens in the worker pool, so the
// queue never waits on a gateway. A render or enqueue failure is logged and
// dropped; delivery problems never block queue transitions.
type Dispatcher struct {
	jobs      store.JobStore
	shifts    store.ShiftStore
	staff     store.StaffDirectory
	templates *TemplateStore
	channels  []models.Channel
	// Supervisor receives queue_exhausted broadcasts.
	Supervisor string
	logger     *zap.Logger
	Now        func() time.Time
}

// NewDispatcher wires a dispatcher for the configured channels, in priority
// order.
func NewDispatcher(jobs store.JobStore, shifts store.ShiftStore, staff store.StaffDirectory,
	templates *TemplateStore, channels []models.Channel, supervisor string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:       jobs,
		shifts:     shifts,
		staff:      staff,
		templates:  templates,
		channels:   channels,
		Supervisor: supervisor,
		logger:     logger,
		Now:        time.Now,
	}
}

func (d *Dispatcher) templateData(ctx context.Context, shiftID, staffName, event string, dueAt time.Time) TemplateData {
	data := TemplateData{StaffName: staffName, ShiftID: shiftID, Event: event}
	if !dueAt.IsZero() {
		data.DueAt = dueAt.Format(time.RFC1123)
	}
	if shift, err := d.shifts.GetShift(ctx, shiftID); err == nil {
		data.Department = shift.Department
		data.Start = shift.Start.Format(time.RFC1123)
		data.End = shift.End.Format(time.RFC1123)
	}
	return data
}

// Dispatch enqueues one job per channel the candidate can be reached on.
func (d *Dispatcher) Dispatch(ctx context.Context, offer *models.Offer, event string) {
	staff, err := d.staff.GetStaff(ctx, offer.CandidateID)
	if err != nil {
		d.logger.Warn("dispatch: unknown candidate",
			zap.String("candidate_id", offer.CandidateID), zap.Error(err))
		return
	}

	data := d.templateData(ctx, offer.ShiftID, staff.Name, event, offer.ResponseDueAt)
	enqueued := 0
	for _, channel := range d.channels {
		recipient, ok := staff.Contacts[channel]
		if !ok || recipient == "" {
			continue
		}
		payload, err := d.templates.Render(event, channel, data)
		if err != nil {
			d.logger.Warn("dispatch: render failed",
				zap.String("event", event), zap.String("channel", string(channel)), zap.Error(err))
			continue
		}
		d.enqueue(ctx, offer.ID, event, channel, recipient, payload)
		enqueued++
	}
	if enqueued == 0 {
		d.logger.Warn("dispatch: candidate unreachable on all channels",
			zap.String("candidate_id", offer.CandidateID), zap.String("event", event))
	}
}

// Broadcast enqueues a supervisor notification for shift-level events such
// as an exhausted queue.
func (d *Dispatcher) Broadcast(ctx context.Context, shiftID, event string) {
	if d.Supervisor == "" {
		d.logger.Warn("broadcast skipped: no supervisor contact configured",
			zap.String("shift_id", shiftID), zap.String("event", event))
		return
	}
	data := d.templateData(ctx, shiftID, "supervisor", event, time.Time{})
	channel := models.ChannelEmail
	if len(d.channels) > 0 {
		channel = d.channels[0]
	}
	payload, err := d.templates.Render(event, channel, data)
	if err != nil {
		d.logger.Warn("broadcast: render failed", zap.String("event", event), zap.Error(err))
		return
	}
	d.enqueue(ctx, "", event, channel, d.Supervisor, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, offerID, event string, channel models.Channel, recipient, payload string) {
	now := d.Now()
	job := &models.NotificationJob{
		ID:          uuid.NewString(),
		OfferID:     offerID,
		Event:       event,
		Channel:     channel,
		Recipient:   recipient,
		Payload:     payload,
		Status:      models.JobQueued,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	if err := d.jobs.EnqueueJob(ctx, job); err != nil {
		d.logger.Error("failed to enqueue notification job",
			zap.String("event", event), zap.String("channel", string(channel)), zap.Error(err))
		return
	}
	d.logger.Debug("notification job enqueued",
		zap.String("job_id", job.ID),
		zap.String("event", event),
		zap.String("channel", string(channel)))
}
