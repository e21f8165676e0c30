package models

import "time"

// ShiftStatus tracks a shift through its fill lifecycle.
type ShiftStatus string

const (
	ShiftOpen      ShiftStatus = "open"
	ShiftPartial   ShiftStatus = "partial"
	ShiftFilled    ShiftStatus = "filled"
	ShiftCancelled ShiftStatus = "cancelled"
)

// Terminal reports whether no further fill transitions are possible.
func (s ShiftStatus) Terminal() bool {
	return s == ShiftFilled || s == ShiftCancelled
}

// OfferStatus is the state of a single timed invitation.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferDeclined  OfferStatus = "declined"
	OfferExpired   OfferStatus = "expired"
	OfferCancelled OfferStatus = "cancelled"
)

// Channel is a delivery route for notifications.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// JobStatus is the delivery state of a NotificationJob.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobSending   JobStatus = "sending"
	JobDelivered JobStatus = "delivered"
	JobFailed    JobStatus = "failed"
)

// Shift is a slot of departmental coverage that needs filling.
type Shift struct {
	ID             string      `json:"id"`
	Department     string      `json:"department"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	RequiredStaff  int         `json:"required_staff"`
	RemainingSlots int         `json:"remaining_slots"`
	Status         ShiftStatus `json:"status"`
}

// ShiftInterval records the time span of a shift a staff member has
// accepted, used to keep overlapping offers away from them.
type ShiftInterval struct {
	ShiftID string    `json:"shift_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// StaffMember is a person who can be offered shifts.
type StaffMember struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Department     string  `json:"department"`
	OnLeave        bool    `json:"on_leave"`
	MaxHours       float64 `json:"max_hours"`
	AssignedHours  float64 `json:"assigned_hours"`
	SeniorityYears float64 `json:"seniority_years"`
	AcceptedCount  int     `json:"accepted_count"`
	DistanceKM     float64 `json:"distance_km"`
	// AssignedShifts lists the intervals of shifts already accepted.
	AssignedShifts []ShiftInterval `json:"assigned_shifts,omitempty"`
	// Contact addresses per channel, e.g. push device token, email, phone.
	Contacts map[Channel]string `json:"contacts"`
}

// Offer is one timed invitation for one staff member to fill one slot.
type Offer struct {
	ID            string      `json:"id"`
	ShiftID       string      `json:"shift_id"`
	CandidateID   string      `json:"candidate_id"`
	Cycle         int         `json:"cycle"`
	Position      int         `json:"position_in_queue"`
	Status        OfferStatus `json:"status"`
	SentAt        time.Time   `json:"sent_at"`
	ResponseDueAt time.Time   `json:"response_due_at"`
	RespondedAt   *time.Time  `json:"responded_at,omitempty"`
}

// NotificationJob is one pending delivery of a rendered message.
type NotificationJob struct {
	ID          string    `json:"id"`
	OfferID     string    `json:"offer_id"`
	Event       string    `json:"event"`
	Channel     Channel   `json:"channel"`
	Recipient   string    `json:"recipient"`
	Payload     string    `json:"payload"`
	Attempts    int       `json:"attempt_count"`
	Status      JobStatus `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	NextRetryAt time.Time `json:"next_retry_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// OfferEvent is an append-only record of a queue transition, kept for audit.
type OfferEvent struct {
	ID      uint      `json:"id"`
	ShiftID string    `json:"shift_id"`
	OfferID string    `json:"offer_id,omitempty"`
	Type    string    `json:"type"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Offer event types recorded by the queue.
const (
	EventOfferSent      = "offer_sent"
	EventOfferAccepted  = "offer_accepted"
	EventOfferDeclined  = "offer_declined"
	EventOfferExpired   = "offer_expired"
	EventOfferCancelled = "offer_cancelled"
	EventShiftFilled    = "shift_filled"
	EventShiftCancelled = "shift_cancelled"
	EventQueueExhausted = "queue_exhausted"
)

// Decision is a staff response to a pending offer.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// OpenShiftRequest is the body for POST /api/queue/open-shift.
type OpenShiftRequest struct {
	ShiftID string `json:"shift_id" binding:"required"`
}

// RespondRequest is the body for POST /api/queue/respond.
type RespondRequest struct {
	OfferID  string   `json:"offer_id" binding:"required"`
	Decision Decision `json:"decision" binding:"required,oneof=accept decline"`
}

// CancelShiftRequest is the body for POST /api/queue/cancel-shift.
type CancelShiftRequest struct {
	ShiftID string `json:"shift_id" binding:"required"`
}

// QueueStatus is the response for GET /api/queue/status/:shift_id.
type QueueStatus struct {
	ShiftID        string      `json:"shift_id"`
	ShiftStatus    ShiftStatus `json:"shift_status"`
	RemainingSlots int         `json:"remaining_slots"`
	Candidates     int         `json:"candidates"`
	NextPosition   int         `json:"next_position"`
	PendingOffer   *Offer      `json:"pending_offer,omitempty"`
}
