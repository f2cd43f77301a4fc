package services

import (
	"context"
	"errors"
	"time"

	"cadencecrm/domain"
	"cadencecrm/metrics"
	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TouchInput is the payload for logging a touch
type TouchInput struct {
	ContactID     uint                   `json:"contact_id" validate:"required"`
	TouchType     string                 `json:"touch_type" validate:"required,oneof=email call linkedin other"`
	TouchedAt     *time.Time             `json:"touched_at"`
	Subject       string                 `json:"subject" validate:"max=500"`
	Body          string                 `json:"body"`
	Metadata      map[string]interface{} `json:"metadata"`
	CadenceID     *uint                  `json:"cadence_id"`
	CadenceStepID *uint                  `json:"cadence_step_id"`
	ParentTouchID *uint                  `json:"parent_touch_id"`
}

// TouchUpdate carries the editable fields of a touch; nil means unchanged
type TouchUpdate struct {
	TouchedAt *time.Time             `json:"touched_at"`
	Subject   *string                `json:"subject" validate:"omitempty,max=500"`
	Body      *string                `json:"body"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// TouchPage is one page of a contact's touches, newest first
type TouchPage struct {
	Touches  []models.Touch `json:"touches"`
	Total    int64          `json:"total"`
	HasOlder bool           `json:"has_older"`
	HasNewer bool           `json:"has_newer"`
}

// TouchLog persists outreach interactions
type TouchLog struct {
	db  *gorm.DB
	log *logrus.Entry
	now func() time.Time
}

func NewTouchLog(db *gorm.DB, log *logrus.Entry) *TouchLog {
	return &TouchLog{db: db, log: log, now: time.Now}
}

// SetClock replaces the time source
func (tl *TouchLog) SetClock(now func() time.Time) {
	tl.now = now
}

// LogTouch validates and stores a touch. It never completes a cadence step;
// callers that want that call Engine.CompleteStep.
func (tl *TouchLog) LogTouch(ctx context.Context, in TouchInput) (*models.Touch, error) {
	var touch *models.Touch
	err := tl.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		touch, err = tl.create(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTouch(touch.TouchType)
	tl.log.WithFields(logrus.Fields{
		"touch_id":   touch.ID,
		"contact_id": touch.ContactID,
		"touch_type": touch.TouchType,
	}).Info("touch logged")
	return touch, nil
}

// create is shared with the step engine so a completing touch lands in the
// same transaction as the step update
func (tl *TouchLog) create(tx *gorm.DB, in TouchInput) (*models.Touch, error) {
	if in.ContactID == 0 {
		return nil, domain.NewMissingFieldError("contact_id")
	}
	if in.TouchType == "" {
		return nil, domain.NewMissingFieldError("touch_type")
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	var contact models.Contact
	if err := tx.Select("id").First(&contact, in.ContactID).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}

	touch := models.Touch{
		ContactID:     in.ContactID,
		TouchType:     in.TouchType,
		Subject:       in.Subject,
		Body:          in.Body,
		CadenceID:     in.CadenceID,
		CadenceStepID: in.CadenceStepID,
		ParentTouchID: in.ParentTouchID,
		TouchedAt:     tl.now().UTC(),
	}
	if in.TouchedAt != nil && !in.TouchedAt.IsZero() {
		touch.TouchedAt = in.TouchedAt.UTC()
	}

	if in.CadenceStepID != nil {
		var step models.CadenceStep
		if err := tx.Select("id", "cadence_id").First(&step, *in.CadenceStepID).Error; err != nil {
			return nil, notFoundOr(err, "cadence step")
		}
		if in.CadenceID == nil {
			touch.CadenceID = &step.CadenceID
		} else if *in.CadenceID != step.CadenceID {
			return nil, domain.NewValidationError("cadence_step_id does not belong to cadence_id")
		}
	}

	if in.ParentTouchID != nil {
		var parent models.Touch
		if err := tx.Select("id", "contact_id", "thread_id").First(&parent, *in.ParentTouchID).Error; err != nil {
			return nil, notFoundOr(err, "parent touch")
		}
		if parent.ContactID != in.ContactID {
			return nil, domain.NewValidationError("parent touch belongs to a different contact")
		}
		touch.ThreadID = parent.ThreadID
	}
	if touch.ThreadID == "" {
		touch.ThreadID = uuid.New().String()
	}

	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return nil, domain.NewValidationError("metadata must be a JSON object")
	}
	touch.Metadata = meta

	if err := tx.Create(&touch).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return &touch, nil
}

// ListTouches pages through a contact's touches, newest first.
// has_older is offset+limit < total; has_newer is offset > 0.
func (tl *TouchLog) ListTouches(ctx context.Context, contactID uint, offset, limit int) (*TouchPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, domain.NewValidationError("limit must be greater than 0")
	}

	db := tl.db.WithContext(ctx)
	var contact models.Contact
	if err := db.Select("id").First(&contact, contactID).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}

	var total int64
	if err := db.Model(&models.Touch{}).Where("contact_id = ?", contactID).Count(&total).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	touches := []models.Touch{}
	if err := db.Where("contact_id = ?", contactID).
		Order("touched_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&touches).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	return &TouchPage{
		Touches:  touches,
		Total:    total,
		HasOlder: int64(offset+limit) < total,
		HasNewer: offset > 0,
	}, nil
}

// GetTouch loads a single touch
func (tl *TouchLog) GetTouch(ctx context.Context, touchID uint) (*models.Touch, error) {
	var touch models.Touch
	if err := tl.db.WithContext(ctx).First(&touch, touchID).Error; err != nil {
		return nil, notFoundOr(err, "touch")
	}
	return &touch, nil
}

// UpdateTouch applies an explicit user edit
func (tl *TouchLog) UpdateTouch(ctx context.Context, touchID uint, in TouchUpdate) (*models.Touch, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	touch, err := tl.GetTouch(ctx, touchID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Subject != nil {
		updates["subject"] = *in.Subject
	}
	if in.Body != nil {
		updates["body"] = *in.Body
	}
	if in.TouchedAt != nil && !in.TouchedAt.IsZero() {
		updates["touched_at"] = in.TouchedAt.UTC()
	}
	if in.Metadata != nil {
		meta, err := encodeMetadata(in.Metadata)
		if err != nil {
			return nil, domain.NewValidationError("metadata must be a JSON object")
		}
		updates["metadata"] = meta
	}
	if len(updates) == 0 {
		return touch, nil
	}

	if err := tl.db.WithContext(ctx).Model(touch).Updates(updates).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return tl.GetTouch(ctx, touchID)
}

// DeleteTouch hard-deletes a touch. History events that referenced it are
// left untouched.
func (tl *TouchLog) DeleteTouch(ctx context.Context, touchID uint) error {
	res := tl.db.WithContext(ctx).Delete(&models.Touch{}, touchID)
	if res.Error != nil {
		return domain.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewNotFoundError("touch")
	}
	tl.log.WithField("touch_id", touchID).Info("touch deleted")
	return nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(resource)
	}
	return domain.NewInternalError(err)
}
