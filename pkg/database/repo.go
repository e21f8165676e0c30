package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// Store implements the store interfaces on top of gorm.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps a gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func shiftFromRow(r *ShiftRow) *models.Shift {
	return &models.Shift{
		ID:             r.ID,
		Department:     r.Department,
		Start:          r.Start,
		End:            r.End,
		RequiredStaff:  r.RequiredStaff,
		RemainingSlots: r.RemainingSlots,
		Status:         models.ShiftStatus(r.Status),
	}
}

func rowFromShift(s *models.Shift) *ShiftRow {
	return &ShiftRow{
		ID:             s.ID,
		Department:     s.Department,
		Start:          s.Start,
		End:            s.End,
		RequiredStaff:  s.RequiredStaff,
		RemainingSlots: s.RemainingSlots,
		Status:         string(s.Status),
	}
}

func staffFromRow(r *StaffRow) *models.StaffMember {
	contacts := make(map[models.Channel]string)
	if r.PushToken != "" {
		contacts[models.ChannelPush] = r.PushToken
	}
	if r.Email != "" {
		contacts[models.ChannelEmail] = r.Email
	}
	if r.Phone != "" {
		contacts[models.ChannelSMS] = r.Phone
	}
	var assigned []models.ShiftInterval
	if r.AssignedShifts != "" {
		_ = json.Unmarshal([]byte(r.AssignedShifts), &assigned)
	}
	return &models.StaffMember{
		ID:             r.ID,
		Name:           r.Name,
		Department:     r.Department,
		OnLeave:        r.OnLeave,
		MaxHours:       r.MaxHours,
		AssignedHours:  r.AssignedHours,
		SeniorityYears: r.SeniorityYears,
		AcceptedCount:  r.AcceptedCount,
		DistanceKM:     r.DistanceKM,
		AssignedShifts: assigned,
		Contacts:       contacts,
	}
}

func rowFromStaff(s *models.StaffMember) *StaffRow {
	var assigned string
	if len(s.AssignedShifts) > 0 {
		if data, err := json.Marshal(s.AssignedShifts); err == nil {
			assigned = string(data)
		}
	}
	return &StaffRow{
		ID:             s.ID,
		Name:           s.Name,
		Department:     s.Department,
		OnLeave:        s.OnLeave,
		MaxHours:       s.MaxHours,
		AssignedHours:  s.AssignedHours,
		SeniorityYears: s.SeniorityYears,
		AcceptedCount:  s.AcceptedCount,
		DistanceKM:     s.DistanceKM,
		AssignedShifts: assigned,
		PushToken:      s.Contacts[models.ChannelPush],
		Email:          s.Contacts[models.ChannelEmail],
		Phone:          s.Contacts[models.ChannelSMS],
	}
}

func offerFromRow(r *OfferRow) *models.Offer {
	return &models.Offer{
		ID:            r.ID,
		ShiftID:       r.ShiftID,
		CandidateID:   r.CandidateID,
		Cycle:         r.Cycle,
		Position:      r.Position,
		Status:        models.OfferStatus(r.Status),
		SentAt:        r.SentAt,
		ResponseDueAt: r.ResponseDueAt,
		RespondedAt:   r.RespondedAt,
	}
}

func rowFromOffer(o *models.Offer) *OfferRow {
	return &OfferRow{
		ID:            o.ID,
		ShiftID:       o.ShiftID,
		CandidateID:   o.CandidateID,
		Cycle:         o.Cycle,
		Position:      o.Position,
		Status:        string(o.Status),
		SentAt:        o.SentAt,
		ResponseDueAt: o.ResponseDueAt,
		RespondedAt:   o.RespondedAt,
	}
}

func jobFromRow(r *NotificationJobRow) *models.NotificationJob {
	return &models.NotificationJob{
		ID:          r.ID,
		OfferID:     r.OfferID,
		Event:       r.Event,
		Channel:     models.Channel(r.Channel),
		Recipient:   r.Recipient,
		Payload:     r.Payload,
		Attempts:    r.Attempts,
		Status:      models.JobStatus(r.Status),
		LastError:   r.LastError,
		NextRetryAt: r.NextRetryAt,
		CreatedAt:   r.CreatedAt,
	}
}

func rowFromJob(j *models.NotificationJob) *NotificationJobRow {
	return &NotificationJobRow{
		ID:          j.ID,
		OfferID:     j.OfferID,
		Event:       j.Event,
		Channel:     string(j.Channel),
		Recipient:   j.Recipient,
		Payload:     j.Payload,
		Attempts:    j.Attempts,
		Status:      string(j.Status),
		LastError:   j.LastError,
		NextRetryAt: j.NextRetryAt,
		CreatedAt:   j.CreatedAt,
	}
}

func (s *Store) GetShift(ctx context.Context, id string) (*models.Shift, error) {
	var row ShiftRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return shiftFromRow(&row), nil
}

func (s *Store) UpdateShift(ctx context.Context, shift *models.Shift) error {
	res := s.DB.WithContext(ctx).Model(&ShiftRow{}).Where("id = ?", shift.ID).
		Updates(map[string]interface{}{
			"remaining_slots": shift.RemainingSlots,
			"status":          string(shift.Status),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetStaff(ctx context.Context, id string) (*models.StaffMember, error) {
	var row StaffRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return staffFromRow(&row), nil
}

func (s *Store) ListByDepartment(ctx context.Context, department string) ([]models.StaffMember, error) {
	var rows []StaffRow
	if err := s.DB.WithContext(ctx).Where("department = ?", department).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.StaffMember, 0, len(rows))
	for i := range rows {
		out = append(out, *staffFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) UpdateStaff(ctx context.Context, staff *models.StaffMember) error {
	row := rowFromStaff(staff)
	res := s.DB.WithContext(ctx).Model(&StaffRow{}).Where("id = ?", staff.ID).
		Updates(map[string]interface{}{
			"assigned_hours":  row.AssignedHours,
			"accepted_count":  row.AcceptedCount,
			"assigned_shifts": row.AssignedShifts,
			"on_leave":        row.OnLeave,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateOffer(ctx context.Context, offer *models.Offer) error {
	return s.DB.WithContext(ctx).Create(rowFromOffer(offer)).Error
}

func (s *Store) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var row OfferRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return offerFromRow(&row), nil
}

func (s *Store) UpdateOffer(ctx context.Context, offer *models.Offer) error {
	res := s.DB.WithContext(ctx).Model(&OfferRow{}).Where("id = ?", offer.ID).
		Updates(map[string]interface{}{
			"status":       string(offer.Status),
			"responded_at": offer.RespondedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PendingOffer(ctx context.Context, shiftID string) (*models.Offer, error) {
	var row OfferRow
	err := s.DB.WithContext(ctx).
		Where("shift_id = ? AND status = ?", shiftID, string(models.OfferPending)).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return offerFromRow(&row), nil
}

func (s *Store) DuePending(ctx context.Context, now time.Time, limit int) ([]models.Offer, error) {
	var rows []OfferRow
	q := s.DB.WithContext(ctx).
		Where("status = ? AND response_due_at <= ?", string(models.OfferPending), now).
		Order("response_due_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Offer, 0, len(rows))
	for i := range rows {
		out = append(out, *offerFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) EnqueueJob(ctx context.Context, job *models.NotificationJob) error {
	return s.DB.WithContext(ctx).Create(rowFromJob(job)).Error
}

// ClaimDue selects due queued jobs and flips each to sending with a
// conditional update, so a job lost to a concurrent worker is skipped.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationJob, error) {
	var rows []NotificationJobRow
	q := s.DB.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", string(models.JobQueued), now).
		Order("next_retry_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	claimed := make([]models.NotificationJob, 0, len(rows))
	for i := range rows {
		res := s.DB.WithContext(ctx).Model(&NotificationJobRow{}).
			Where("id = ? AND status = ?", rows[i].ID, string(models.JobQueued)).
			Update("status", string(models.JobSending))
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		rows[i].Status = string(models.JobSending)
		claimed = append(claimed, *jobFromRow(&rows[i]))
	}
	return claimed, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *models.NotificationJob) error {
	res := s.DB.WithContext(ctx).Model(&NotificationJobRow{}).Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"attempts":      job.Attempts,
			"status":        string(job.Status),
			"last_error":    job.LastError,
			"next_retry_at": job.NextRetryAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.NotificationJob, error) {
	var row NotificationJobRow
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return jobFromRow(&row), nil
}

func (s *Store) AppendEvent(ctx context.Context, event *models.OfferEvent) error {
	row := OfferEventRow{
		ShiftID: event.ShiftID,
		OfferID: event.OfferID,
		Type:    event.Type,
		Detail:  event.Detail,
		At:      event.At,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	event.ID = row.ID
	return nil
}

func (s *Store) EventsForShift(ctx context.Context, shiftID string) ([]models.OfferEvent, error) {
	var rows []OfferEventRow
	if err := s.DB.WithContext(ctx).Where("shift_id = ?", shiftID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.OfferEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.OfferEvent{
			ID: r.ID, ShiftID: r.ShiftID, OfferID: r.OfferID,
			Type: r.Type, Detail: r.Detail, At: r.At,
		})
	}
	return out, nil
}
