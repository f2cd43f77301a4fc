package services

import (
	"context"

	"cadencecrm/domain"
	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CadenceInput creates or renames a cadence
type CadenceInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description"`
	Steps       []StepInput `json:"steps" validate:"dive"`
}

// StepInput defines one cadence step
type StepInput struct {
	DayNumber    *int   `json:"day_number" validate:"required,min=0"`
	ActionType   string `json:"action_type" validate:"required,oneof=email phone linkedin task"`
	Label        string `json:"label" validate:"required,max=200"`
	Instructions string `json:"instructions"`
	EmailSubject string `json:"email_subject" validate:"max=500"`
	EmailBody    string `json:"email_body"`
	TemplateID   *uint  `json:"template_id"`
}

// Cadences manages cadence definitions and keeps active enrollments in step
// with them
type Cadences struct {
	db     *gorm.DB
	engine *Engine
	log    *logrus.Entry
}

func NewCadences(db *gorm.DB, engine *Engine, log *logrus.Entry) *Cadences {
	return &Cadences{db: db, engine: engine, log: log}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("day_number ASC").Order("id ASC")
}

// CreateCadence stores a cadence and any initial steps
func (cs *Cadences) CreateCadence(ctx context.Context, in CadenceInput) (*models.Cadence, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	cadence := models.Cadence{Name: in.Name, Description: in.Description}
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&cadence).Error; err != nil {
			return domain.NewInternalError(err)
		}
		for _, s := range in.Steps {
			if _, err := cs.addStep(tx, cadence.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cs.log.WithField("cadence_id", cadence.ID).Info("cadence created")
	return cs.GetCadence(ctx, cadence.ID)
}

// ListCadences returns all cadences with their steps
func (cs *Cadences) ListCadences(ctx context.Context) ([]models.Cadence, error) {
	cadences := []models.Cadence{}
	if err := cs.db.WithContext(ctx).Preload("Steps", orderedSteps).
		Order("name ASC").Find(&cadences).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return cadences, nil
}

// GetCadence loads a cadence with ordered steps
func (cs *Cadences) GetCadence(ctx context.Context, cadenceID uint) (*models.Cadence, error) {
	var cadence models.Cadence
	if err := cs.db.WithContext(ctx).Preload("Steps", orderedSteps).
		First(&cadence, cadenceID).Error; err != nil {
		return nil, notFoundOr(err, "cadence")
	}
	return &cadence, nil
}

// UpdateCadence renames a cadence or changes its description
func (cs *Cadences) UpdateCadence(ctx context.Context, cadenceID uint, in CadenceInput) (*models.Cadence, error) {
	in.Steps = nil
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	cadence, err := cs.GetCadence(ctx, cadenceID)
	if err != nil {
		return nil, err
	}
	if err := cs.db.WithContext(ctx).Model(cadence).Updates(map[string]interface{}{
		"name":        in.Name,
		"description": in.Description,
	}).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return cs.GetCadence(ctx, cadenceID)
}

// DeleteCadence removes a cadence that nobody is active in
func (cs *Cadences) DeleteCadence(ctx context.Context, cadenceID uint) error {
	return cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cadence models.Cadence
		if err := tx.First(&cadence, cadenceID).Error; err != nil {
			return notFoundOr(err, "cadence")
		}

		var active int64
		if err := tx.Model(&models.ContactCadence{}).
			Where("cadence_id = ? AND status = ?", cadenceID, models.EnrollmentActive).
			Count(&active).Error; err != nil {
			return domain.NewInternalError(err)
		}
		if active > 0 {
			return domain.NewConflictError("cadence has active contacts; remove them first")
		}

		if err := tx.Where("cadence_id = ?", cadenceID).Delete(&models.CadenceStep{}).Error; err != nil {
			return domain.NewInternalError(err)
		}
		if err := tx.Delete(&cadence).Error; err != nil {
			return domain.NewInternalError(err)
		}
		return nil
	})
}

// AddStep appends a step to a cadence. Active enrollments that have not yet
// passed the step's day get a pending instance of it.
func (cs *Cadences) AddStep(ctx context.Context, cadenceID uint, in StepInput) (*models.CadenceStep, error) {
	var step *models.CadenceStep
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cadence models.Cadence
		if err := tx.Select("id").First(&cadence, cadenceID).Error; err != nil {
			return notFoundOr(err, "cadence")
		}
		var err error
		step, err = cs.addStep(tx, cadenceID, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	cs.log.WithFields(logrus.Fields{
		"cadence_id": cadenceID,
		"step_id":    step.ID,
		"day_number": step.DayNumber,
	}).Info("cadence step added")
	return step, nil
}

func (cs *Cadences) addStep(tx *gorm.DB, cadenceID uint, in StepInput) (*models.CadenceStep, error) {
	if in.DayNumber == nil {
		return nil, domain.NewMissingFieldError("day_number")
	}
	if in.Label == "" {
		return nil, domain.NewMissingFieldError("label")
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	step := models.CadenceStep{
		CadenceID:    cadenceID,
		TemplateID:   in.TemplateID,
		DayNumber:    *in.DayNumber,
		ActionType:   in.ActionType,
		Label:        in.Label,
		Instructions: in.Instructions,
		EmailSubject: in.EmailSubject,
		EmailBody:    in.EmailBody,
	}
	if in.TemplateID != nil {
		var tmpl models.Template
		if err := tx.First(&tmpl, *in.TemplateID).Error; err != nil {
			return nil, notFoundOr(err, "template")
		}
		if step.EmailSubject == "" {
			step.EmailSubject = tmpl.Subject
		}
		if step.EmailBody == "" {
			step.EmailBody = tmpl.Body
		}
	}
	if err := tx.Create(&step).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	var active []models.ContactCadence
	if err := tx.Where("cadence_id = ? AND status = ? AND current_day <= ?", cadenceID, models.EnrollmentActive, step.DayNumber).
		Find(&active).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	for _, enrollment := range active {
		instance := models.ContactCadenceStep{
			EnrollmentID:  enrollment.ID,
			CadenceStepID: step.ID,
			ContactID:     enrollment.ContactID,
			DayNumber:     step.DayNumber,
			DueOn:         dateOf(enrollment.StartedAt).AddDate(0, 0, step.DayNumber),
			Status:        models.StepPending,
		}
		if err := tx.Create(&instance).Error; err != nil {
			return nil, domain.NewInternalError(err)
		}
	}
	return &step, nil
}

// UpdateStep edits a step's definition. Instances already materialized keep
// their day and due date.
func (cs *Cadences) UpdateStep(ctx context.Context, cadenceID, stepID uint, in StepInput) (*models.CadenceStep, error) {
	if in.DayNumber == nil {
		return nil, domain.NewMissingFieldError("day_number")
	}
	if in.Label == "" {
		return nil, domain.NewMissingFieldError("label")
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	db := cs.db.WithContext(ctx)
	var step models.CadenceStep
	if err := db.Where("id = ? AND cadence_id = ?", stepID, cadenceID).First(&step).Error; err != nil {
		return nil, notFoundOr(err, "cadence step")
	}
	if in.TemplateID != nil {
		var tmpl models.Template
		if err := db.Select("id").First(&tmpl, *in.TemplateID).Error; err != nil {
			return nil, notFoundOr(err, "template")
		}
	}

	if err := db.Model(&step).Updates(map[string]interface{}{
		"day_number":    *in.DayNumber,
		"action_type":   in.ActionType,
		"label":         in.Label,
		"instructions":  in.Instructions,
		"email_subject": in.EmailSubject,
		"email_body":    in.EmailBody,
		"template_id":   in.TemplateID,
	}).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	if err := db.First(&step, stepID).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return &step, nil
}

// DeleteStep removes a step from a cadence. Its pending instances in active
// enrollments are dropped and those enrollments re-evaluated, which may
// complete them.
func (cs *Cadences) DeleteStep(ctx context.Context, cadenceID, stepID uint) error {
	return cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var step models.CadenceStep
		if err := tx.Where("id = ? AND cadence_id = ?", stepID, cadenceID).First(&step).Error; err != nil {
			return notFoundOr(err, "cadence step")
		}

		var enrollments []models.ContactCadence
		if err := tx.Where("cadence_id = ? AND status = ?", cadenceID, models.EnrollmentActive).
			Find(&enrollments).Error; err != nil {
			return domain.NewInternalError(err)
		}

		if err := tx.Where("cadence_step_id = ? AND status = ?", stepID, models.StepPending).
			Delete(&models.ContactCadenceStep{}).Error; err != nil {
			return domain.NewInternalError(err)
		}
		if err := tx.Delete(&step).Error; err != nil {
			return domain.NewInternalError(err)
		}

		now := cs.engine.now().UTC()
		for i := range enrollments {
			if err := cs.engine.advance(tx, &enrollments[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCadenceEnrollments returns the enrollments of a cadence, optionally by status
func (cs *Cadences) ListCadenceEnrollments(ctx context.Context, cadenceID uint, status string) ([]models.ContactCadence, error) {
	db := cs.db.WithContext(ctx)

	var cadence models.Cadence
	if err := db.Select("id").First(&cadence, cadenceID).Error; err != nil {
		return nil, notFoundOr(err, "cadence")
	}

	q := db.Where("cadence_id = ?", cadenceID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	enrollments := []models.ContactCadence{}
	if err := q.Order("started_at DESC").Order("id DESC").Find(&enrollments).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	return enrollments, nil
}
