package services

import (
	"context"
	"errors"
	"time"

	"cadencecrm/domain"
	"cadencecrm/metrics"
	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StepResult is the outcome of a step transition. EventRecorded is false when
// the transition was committed but its history event could not be written.
type StepResult struct {
	Step          *models.ContactCadenceStep `json:"step"`
	Enrollment    *models.ContactCadence     `json:"enrollment"`
	Touch         *models.Touch              `json:"touch,omitempty"`
	EventRecorded bool                       `json:"event_recorded"`
}

// DueStepFilter narrows ListDueSteps. Zero values mean no filter.
type DueStepFilter struct {
	CadenceID uint
}

// Engine enforces cadence step progression for enrolled contacts
type Engine struct {
	db       *gorm.DB
	touches  *TouchLog
	recorder EventRecorder
	mailer   utils.Mailer
	log      *logrus.Entry
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, for the engine and its touch log
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		if e.touches != nil {
			e.touches.SetClock(now)
		}
	}
}

// WithRecorder replaces the history event writer
func WithRecorder(r EventRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMailer sets the transport used by SendStepEmail
func WithMailer(m utils.Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// NewEngine builds an engine. A nil touches gets a touch log on the same db.
func NewEngine(db *gorm.DB, touches *TouchLog, log *logrus.Entry, opts ...Option) *Engine {
	if touches == nil {
		touches = NewTouchLog(db, log)
	}
	e := &Engine{
		db:       db,
		touches:  touches,
		recorder: GormRecorder{},
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompleteStep marks the contact's instance of cadenceStepID completed. When
// touch is non-nil it is stored first, linked to the step, in the same
// transaction; a failed transition discards it.
func (e *Engine) CompleteStep(ctx context.Context, contactID, cadenceStepID uint, touch *TouchInput) (*StepResult, error) {
	result := &StepResult{}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		step, enrollment, err := e.loadStep(tx, contactID, cadenceStepID)
		if err != nil {
			return err
		}
		if step.IsTerminal() {
			return domain.NewAlreadyTerminalError(step.Status)
		}

		if touch != nil {
			in := *touch
			in.ContactID = contactID
			in.CadenceID = &enrollment.CadenceID
			in.CadenceStepID = &cadenceStepID
			created, err := e.touches.create(tx, in)
			if err != nil {
				return err
			}
			result.Touch = created
		}

		now := e.now().UTC()
		updates := map[string]interface{}{
			"status":       models.StepCompleted,
			"completed_at": now,
		}
		if result.Touch != nil {
			updates["touch_id"] = result.Touch.ID
		}
		if err := e.transition(tx, step, updates); err != nil {
			return err
		}

		event := &models.CadenceHistoryEvent{
			ContactID:     contactID,
			CadenceID:     enrollment.CadenceID,
			EnrollmentID:  enrollment.ID,
			CadenceStepID: &cadenceStepID,
			EventType:     models.EventCompleted,
			EventAt:       now,
		}
		meta := map[string]interface{}{"day_number": step.DayNumber}
		if result.Touch != nil {
			event.TouchID = &result.Touch.ID
			meta["touch_id"] = result.Touch.ID
			meta["touch_type"] = result.Touch.TouchType
		}
		result.EventRecorded = e.emit(tx, event, meta)

		if err := e.advance(tx, enrollment, now); err != nil {
			return err
		}

		return e.reload(tx, step, enrollment, result)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStepTransition(models.StepCompleted)
	if result.Touch != nil {
		metrics.RecordTouch(result.Touch.TouchType)
	}
	e.log.WithFields(logrus.Fields{
		"contact_id":      contactID,
		"cadence_step_id": cadenceStepID,
		"with_touch":      result.Touch != nil,
	}).Info("step completed")
	return result, nil
}

// SkipStep marks the contact's instance of cadenceStepID skipped
func (e *Engine) SkipStep(ctx context.Context, contactID, cadenceStepID uint) (*StepResult, error) {
	result := &StepResult{}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		step, enrollment, err := e.loadStep(tx, contactID, cadenceStepID)
		if err != nil {
			return err
		}
		if step.IsTerminal() {
			return domain.NewAlreadyTerminalError(step.Status)
		}

		now := e.now().UTC()
		if err := e.transition(tx, step, map[string]interface{}{
			"status":     models.StepSkipped,
			"skipped_at": now,
		}); err != nil {
			return err
		}

		result.EventRecorded = e.emit(tx, &models.CadenceHistoryEvent{
			ContactID:     contactID,
			CadenceID:     enrollment.CadenceID,
			EnrollmentID:  enrollment.ID,
			CadenceStepID: &cadenceStepID,
			EventType:     models.EventSkipped,
			EventAt:       now,
		}, map[string]interface{}{"day_number": step.DayNumber})

		if err := e.advance(tx, enrollment, now); err != nil {
			return err
		}

		return e.reload(tx, step, enrollment, result)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStepTransition(models.StepSkipped)
	e.log.WithFields(logrus.Fields{
		"contact_id":      contactID,
		"cadence_step_id": cadenceStepID,
	}).Info("step skipped")
	return result, nil
}

// PostponeStep moves the due date of a pending step. newDueOn is YYYY-MM-DD,
// must not be before today in UTC and never moves the due date earlier.
func (e *Engine) PostponeStep(ctx context.Context, contactID, cadenceStepID uint, newDueOn string) (*StepResult, error) {
	due, err := parseDueDate(newDueOn)
	if err != nil {
		return nil, err
	}
	if due.Before(dateOf(e.now())) {
		return nil, domain.NewInvalidDateError("new_due_on cannot be before today")
	}

	result := &StepResult{}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		step, enrollment, err := e.loadStep(tx, contactID, cadenceStepID)
		if err != nil {
			return err
		}
		if step.IsTerminal() {
			return domain.NewAlreadyTerminalError(step.Status)
		}
		if due.Before(dateOf(step.DueOn)) {
			return domain.NewInvalidDateError("new_due_on cannot be before the current due date " +
				dateOf(step.DueOn).Format(dateLayout))
		}

		if err := e.transition(tx, step, map[string]interface{}{"due_on": due}); err != nil {
			return err
		}

		result.EventRecorded = e.emit(tx, &models.CadenceHistoryEvent{
			ContactID:     contactID,
			CadenceID:     enrollment.CadenceID,
			EnrollmentID:  enrollment.ID,
			CadenceStepID: &cadenceStepID,
			EventType:     models.EventPostponed,
			EventAt:       e.now().UTC(),
		}, map[string]interface{}{
			"new_due_on":      due.Format(dateLayout),
			"previous_due_on": step.DueOn.UTC().Format(dateLayout),
		})

		return e.reload(tx, step, enrollment, result)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStepTransition(models.EventPostponed)
	e.log.WithFields(logrus.Fields{
		"contact_id":      contactID,
		"cadence_step_id": cadenceStepID,
		"new_due_on":      due.Format(dateLayout),
	}).Info("step postponed")
	return result, nil
}

// EnrollContact starts a contact on a cadence, materializing one pending step
// per cadence step with due_on = today + day_number.
func (e *Engine) EnrollContact(ctx context.Context, contactID, cadenceID uint) (*models.ContactCadence, error) {
	var enrollment models.ContactCadence

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contact models.Contact
		if err := tx.Select("id").First(&contact, contactID).Error; err != nil {
			return notFoundOr(err, "contact")
		}

		var cadence models.Cadence
		if err := tx.Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_number ASC").Order("id ASC")
		}).First(&cadence, cadenceID).Error; err != nil {
			return notFoundOr(err, "cadence")
		}
		if len(cadence.Steps) == 0 {
			return domain.NewValidationError("cadence has no steps")
		}

		var active int64
		if err := tx.Model(&models.ContactCadence{}).
			Where("contact_id = ? AND cadence_id = ? AND status = ?", contactID, cadenceID, models.EnrollmentActive).
			Count(&active).Error; err != nil {
			return domain.NewInternalError(err)
		}
		if active > 0 {
			return domain.NewAlreadyEnrolledError()
		}

		now := e.now().UTC()
		today := dateOf(now)
		enrollment = models.ContactCadence{
			ContactID:  contactID,
			CadenceID:  cadenceID,
			CurrentDay: cadence.Steps[0].DayNumber,
			Status:     models.EnrollmentActive,
			StartedAt:  now,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.NewAlreadyEnrolledError()
			}
			return domain.NewInternalError(err)
		}

		steps := make([]models.ContactCadenceStep, 0, len(cadence.Steps))
		for _, cs := range cadence.Steps {
			steps = append(steps, models.ContactCadenceStep{
				EnrollmentID:  enrollment.ID,
				CadenceStepID: cs.ID,
				ContactID:     contactID,
				DayNumber:     cs.DayNumber,
				DueOn:         today.AddDate(0, 0, cs.DayNumber),
				Status:        models.StepPending,
			})
		}
		if err := tx.Create(&steps).Error; err != nil {
			return domain.NewInternalError(err)
		}
		enrollment.Steps = steps

		e.emit(tx, &models.CadenceHistoryEvent{
			ContactID:    contactID,
			CadenceID:    cadenceID,
			EnrollmentID: enrollment.ID,
			EventType:    models.EventAdded,
			EventAt:      now,
		}, map[string]interface{}{"cadence_name": cadence.Name, "step_count": len(steps)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordEnrollmentChange(models.EventAdded)
	e.log.WithFields(logrus.Fields{
		"contact_id":    contactID,
		"cadence_id":    cadenceID,
		"enrollment_id": enrollment.ID,
	}).Info("contact enrolled")
	return &enrollment, nil
}

// RemoveContact ends the contact's active enrollment in cadenceID. Pending
// steps stay pending and are no longer listed as due.
func (e *Engine) RemoveContact(ctx context.Context, contactID, cadenceID uint) error {
	return e.endEnrollment(ctx, contactID, cadenceID, models.EventContactRemoved)
}

// EndEnrollment stops a cadence early for a contact, e.g. after a reply
func (e *Engine) EndEnrollment(ctx context.Context, contactID, cadenceID uint) error {
	return e.endEnrollment(ctx, contactID, cadenceID, models.EventEnded)
}

func (e *Engine) endEnrollment(ctx context.Context, contactID, cadenceID uint, eventType string) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment models.ContactCadence
		if err := tx.Where("contact_id = ? AND cadence_id = ? AND status = ?", contactID, cadenceID, models.EnrollmentActive).
			First(&enrollment).Error; err != nil {
			return notFoundOr(err, "active enrollment")
		}
		return e.endTx(tx, &enrollment, eventType)
	})
	if err != nil {
		return err
	}

	metrics.RecordEnrollmentChange(eventType)
	e.log.WithFields(logrus.Fields{
		"contact_id": contactID,
		"cadence_id": cadenceID,
		"event":      eventType,
	}).Info("enrollment ended")
	return nil
}

// RemoveFromAllCadences ends every active enrollment of a contact inside tx.
// Used when the contact itself is deleted.
func (e *Engine) RemoveFromAllCadences(tx *gorm.DB, contactID uint) (int, error) {
	var enrollments []models.ContactCadence
	if err := tx.Where("contact_id = ? AND status = ?", contactID, models.EnrollmentActive).
		Find(&enrollments).Error; err != nil {
		return 0, domain.NewInternalError(err)
	}
	for i := range enrollments {
		if err := e.endTx(tx, &enrollments[i], models.EventContactRemoved); err != nil {
			return 0, err
		}
		metrics.RecordEnrollmentChange(models.EventContactRemoved)
	}
	return len(enrollments), nil
}

func (e *Engine) endTx(tx *gorm.DB, enrollment *models.ContactCadence, eventType string) error {
	now := e.now().UTC()
	res := tx.Model(&models.ContactCadence{}).
		Where("id = ? AND status = ?", enrollment.ID, models.EnrollmentActive).
		Updates(map[string]interface{}{"status": models.EnrollmentEnded, "ended_at": now})
	if res.Error != nil {
		return domain.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewConflictError("enrollment is no longer active")
	}

	e.emit(tx, &models.CadenceHistoryEvent{
		ContactID:    enrollment.ContactID,
		CadenceID:    enrollment.CadenceID,
		EnrollmentID: enrollment.ID,
		EventType:    eventType,
		EventAt:      now,
	}, map[string]interface{}{"current_day": enrollment.CurrentDay})
	return nil
}

// ListDueSteps returns the pending steps on the current day of each of the
// contact's active enrollments
func (e *Engine) ListDueSteps(ctx context.Context, contactID uint, filter DueStepFilter) ([]models.ContactCadenceStep, error) {
	db := e.db.WithContext(ctx)

	var contact models.Contact
	if err := db.Select("id").First(&contact, contactID).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}

	q := db.Model(&models.ContactCadenceStep{}).
		Joins("JOIN contact_cadences ON contact_cadences.id = contact_cadence_steps.enrollment_id").
		Where("contact_cadence_steps.contact_id = ? AND contact_cadence_steps.status = ?", contactID, models.StepPending).
		Where("contact_cadences.status = ? AND contact_cadences.deleted_at IS NULL", models.EnrollmentActive).
		Where("contact_cadence_steps.day_number = contact_cadences.current_day")
	if filter.CadenceID != 0 {
		q = q.Where("contact_cadences.cadence_id = ?", filter.CadenceID)
	}

	steps := []models.ContactCadenceStep{}
	if err := q.Preload("CadenceStep").
		Order("contact_cadence_steps.due_on ASC").
		Order("contact_cadence_steps.id ASC").
		Find(&steps).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return steps, nil
}

// ListEnrollments returns every enrollment of a contact, newest first
func (e *Engine) ListEnrollments(ctx context.Context, contactID uint) ([]models.ContactCadence, error) {
	db := e.db.WithContext(ctx)

	var contact models.Contact
	if err := db.Select("id").First(&contact, contactID).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}

	enrollments := []models.ContactCadence{}
	if err := db.Where("contact_id = ?", contactID).
		Preload("Cadence").
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("day_number ASC").Order("id ASC")
		}).
		Preload("Steps.CadenceStep").
		Order("started_at DESC").Order("id DESC").
		Find(&enrollments).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return enrollments, nil
}

// loadStep finds the contact's most recent instance of cadenceStepID and its
// enrollment. A step whose enrollment is no longer active is still returned
// if it is terminal, so callers report the terminal state first.
func (e *Engine) loadStep(tx *gorm.DB, contactID, cadenceStepID uint) (*models.ContactCadenceStep, *models.ContactCadence, error) {
	var step models.ContactCadenceStep
	if err := tx.Where("contact_id = ? AND cadence_step_id = ?", contactID, cadenceStepID).
		Order("id DESC").
		First(&step).Error; err != nil {
		return nil, nil, notFoundOr(err, "step")
	}

	var enrollment models.ContactCadence
	if err := tx.First(&enrollment, step.EnrollmentID).Error; err != nil {
		return nil, nil, notFoundOr(err, "step")
	}
	if !step.IsTerminal() && enrollment.Status != models.EnrollmentActive {
		return nil, nil, domain.NewConflictError("contact is no longer active in this cadence")
	}
	return &step, &enrollment, nil
}

// transition applies updates only while the step is still pending, so two
// racing requests cannot both move it
func (e *Engine) transition(tx *gorm.DB, step *models.ContactCadenceStep, updates map[string]interface{}) error {
	res := tx.Model(&models.ContactCadenceStep{}).
		Where("id = ? AND status = ?", step.ID, models.StepPending).
		Updates(updates)
	if res.Error != nil {
		return domain.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.ContactCadenceStep
		if err := tx.Select("status").First(&current, step.ID).Error; err != nil {
			return notFoundOr(err, "step")
		}
		return domain.NewAlreadyTerminalError(current.Status)
	}
	return nil
}

// advance moves the enrollment pointer once nothing is pending on the
// current day, completing the enrollment when nothing is pending at all
func (e *Engine) advance(tx *gorm.DB, enrollment *models.ContactCadence, now time.Time) error {
	var pendingToday int64
	if err := tx.Model(&models.ContactCadenceStep{}).
		Where("enrollment_id = ? AND status = ? AND day_number = ?", enrollment.ID, models.StepPending, enrollment.CurrentDay).
		Count(&pendingToday).Error; err != nil {
		return domain.NewInternalError(err)
	}
	if pendingToday > 0 {
		return nil
	}

	var next models.ContactCadenceStep
	err := tx.Where("enrollment_id = ? AND status = ?", enrollment.ID, models.StepPending).
		Order("day_number ASC").
		First(&next).Error
	if err == nil {
		if err := tx.Model(enrollment).Update("current_day", next.DayNumber).Error; err != nil {
			return domain.NewInternalError(err)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewInternalError(err)
	}

	if err := tx.Model(enrollment).Updates(map[string]interface{}{
		"status":       models.EnrollmentCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return domain.NewInternalError(err)
	}
	e.emit(tx, &models.CadenceHistoryEvent{
		ContactID:    enrollment.ContactID,
		CadenceID:    enrollment.CadenceID,
		EnrollmentID: enrollment.ID,
		EventType:    models.EventCadenceCompleted,
		EventAt:      now,
	}, nil)
	metrics.RecordEnrollmentChange(models.EventCadenceCompleted)
	return nil
}

// emit writes a history event inside a savepoint. A failure rolls back only
// the event, gets logged and reported, and leaves the outer mutation intact.
func (e *Engine) emit(tx *gorm.DB, event *models.CadenceHistoryEvent, meta map[string]interface{}) bool {
	encoded, err := encodeMetadata(meta)
	if err == nil {
		event.Metadata = encoded
		err = tx.Transaction(func(sp *gorm.DB) error {
			return e.recorder.Record(sp, event)
		})
	}
	if err != nil {
		metrics.HistoryEventFailures.Inc()
		utils.LogError("history_event_failed", err, map[string]interface{}{
			"event_type":    event.EventType,
			"contact_id":    event.ContactID,
			"cadence_id":    event.CadenceID,
			"enrollment_id": event.EnrollmentID,
		})
		return false
	}
	return true
}

func (e *Engine) reload(tx *gorm.DB, step *models.ContactCadenceStep, enrollment *models.ContactCadence, result *StepResult) error {
	var fresh models.ContactCadenceStep
	if err := tx.Preload("CadenceStep").First(&fresh, step.ID).Error; err != nil {
		return domain.NewInternalError(err)
	}
	var freshEnrollment models.ContactCadence
	if err := tx.First(&freshEnrollment, enrollment.ID).Error; err != nil {
		return domain.NewInternalError(err)
	}
	result.Step = &fresh
	result.Enrollment = &freshEnrollment
	return nil
}
