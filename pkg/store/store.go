package store

import (
	"context"
	"errors"
	"time"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ShiftStore reads and updates shift fill state. The relational schema
// behind it is owned by the wider application, not by this service.
type ShiftStore interface {
	GetShift(ctx context.Context, id string) (*models.Shift, error)
	UpdateShift(ctx context.Context, shift *models.Shift) error
}

// StaffDirectory resolves candidates and their contact channels.
type StaffDirectory interface {
	GetStaff(ctx context.Context, id string) (*models.StaffMember, error)
	ListByDepartment(ctx context.Context, department string) ([]models.StaffMember, error)
	UpdateStaff(ctx context.Context, staff *models.StaffMember) error
}

// OfferStore owns Offer rows.
type OfferStore interface {
	CreateOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	UpdateOffer(ctx context.Context, offer *models.Offer) error
	// PendingOffer returns the single pending offer for a shift, or
	// ErrNotFound when there is none.
	PendingOffer(ctx context.Context, shiftID string) (*models.Offer, error)
	// DuePending lists pending offers whose response window has closed at
	// or before now.
	DuePending(ctx context.Context, now time.Time, limit int) ([]models.Offer, error)
}

// JobStore owns NotificationJob rows. Claiming must be atomic so that two
// workers never send the same job.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *models.NotificationJob) error
	// ClaimDue moves up to limit queued jobs with NextRetryAt <= now into
	// the sending state and returns them. A job returned here belongs to
	// the caller until UpdateJob is called.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationJob, error)
	UpdateJob(ctx context.Context, job *models.NotificationJob) error
	GetJob(ctx context.Context, id string) (*models.NotificationJob, error)
}

// EventStore is the append-only audit trail of queue transitions.
type EventStore interface {
	AppendEvent(ctx context.Context, event *models.OfferEvent) error
	EventsForShift(ctx context.Context, shiftID string) ([]models.OfferEvent, error)
}
