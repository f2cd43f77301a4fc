package services

import (
	"context"
	"testing"

	"cadencecrm/domain"
	"cadencecrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCadences(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Cadences, *Engine, *models.Contact) {
		db := setupTestDB(t)
		engine, _ := newTestEngine(t, db)
		return NewCadences(db, engine, testLogger()), engine, createContact(t, db)
	}

	t.Run("Success - create with ordered steps", func(t *testing.T) {
		cadences, _, _ := setup(t)
		cadence, err := cadences.CreateCadence(ctx, CadenceInput{
			Name: "Enterprise outbound",
			Steps: []StepInput{
				{DayNumber: ptr(3), ActionType: models.ActionPhone, Label: "Call"},
				{DayNumber: ptr(0), ActionType: models.ActionEmail, Label: "Intro email", EmailSubject: "Hi"},
			},
		})
		require.NoError(t, err)
		require.Len(t, cadence.Steps, 2)
		assert.Equal(t, 0, cadence.Steps[0].DayNumber)
		assert.Equal(t, 3, cadence.Steps[1].DayNumber)
	})

	t.Run("Error - step validation", func(t *testing.T) {
		cadences, _, _ := setup(t)
		_, err := cadences.CreateCadence(ctx, CadenceInput{
			Name:  "Broken",
			Steps: []StepInput{{DayNumber: ptr(0), ActionType: "carrier_pigeon", Label: "Coo"}},
		})
		assert.True(t, domain.IsValidation(err))

		_, err = cadences.CreateCadence(ctx, CadenceInput{})
		assert.True(t, domain.IsValidation(err))

		list, err := cadences.ListCadences(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("Success - template seeds email content", func(t *testing.T) {
		cadences, _, _ := setup(t)
		tmpl := models.Template{Name: "Intro", Subject: "Hello {{first_name}}", Body: "<p>Hi</p>"}
		require.NoError(t, cadences.db.Create(&tmpl).Error)

		cadence, err := cadences.CreateCadence(ctx, CadenceInput{Name: "Templated"})
		require.NoError(t, err)
		step, err := cadences.AddStep(ctx, cadence.ID, StepInput{
			DayNumber:  ptr(0),
			ActionType: models.ActionEmail,
			Label:      "Intro",
			TemplateID: &tmpl.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello {{first_name}}", step.EmailSubject)
		assert.Equal(t, "<p>Hi</p>", step.EmailBody)
	})

	t.Run("Success - new step reaches active enrollments", func(t *testing.T) {
		cadences, engine, contact := setup(t)
		cadence, err := cadences.CreateCadence(ctx, CadenceInput{
			Name:  "Growing",
			Steps: []StepInput{{DayNumber: ptr(0), ActionType: models.ActionTask, Label: "Research"}},
		})
		require.NoError(t, err)
		_, err = engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		step, err := cadences.AddStep(ctx, cadence.ID, StepInput{DayNumber: ptr(5), ActionType: models.ActionPhone, Label: "Follow up"})
		require.NoError(t, err)

		enrollments, err := engine.ListEnrollments(ctx, contact.ID)
		require.NoError(t, err)
		require.Len(t, enrollments, 1)
		require.Len(t, enrollments[0].Steps, 2)
		assert.Equal(t, step.ID, enrollments[0].Steps[1].CadenceStepID)
		assert.Equal(t, "2026-01-15", enrollments[0].Steps[1].DueOn.UTC().Format(dateLayout))
	})

	t.Run("Success - deleting the last pending step completes the enrollment", func(t *testing.T) {
		cadences, engine, contact := setup(t)
		cadence, err := cadences.CreateCadence(ctx, CadenceInput{
			Name: "Short",
			Steps: []StepInput{
				{DayNumber: ptr(0), ActionType: models.ActionTask, Label: "Research"},
				{DayNumber: ptr(2), ActionType: models.ActionPhone, Label: "Call"},
			},
		})
		require.NoError(t, err)
		_, err = engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)
		_, err = engine.CompleteStep(ctx, contact.ID, cadence.Steps[0].ID, nil)
		require.NoError(t, err)

		require.NoError(t, cadences.DeleteStep(ctx, cadence.ID, cadence.Steps[1].ID))

		enrollments, err := cadences.ListCadenceEnrollments(ctx, cadence.ID, models.EnrollmentCompleted)
		require.NoError(t, err)
		assert.Len(t, enrollments, 1)
	})

	t.Run("Error - delete with active contacts", func(t *testing.T) {
		cadences, engine, contact := setup(t)
		cadence, err := cadences.CreateCadence(ctx, CadenceInput{
			Name:  "Busy",
			Steps: []StepInput{{DayNumber: ptr(0), ActionType: models.ActionTask, Label: "Research"}},
		})
		require.NoError(t, err)
		_, err = engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		err = cadences.DeleteCadence(ctx, cadence.ID)
		assert.True(t, domain.IsConflict(err))

		require.NoError(t, engine.EndEnrollment(ctx, contact.ID, cadence.ID))
		require.NoError(t, cadences.DeleteCadence(ctx, cadence.ID))

		_, err = cadences.GetCadence(ctx, cadence.ID)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("Success - update keeps steps", func(t *testing.T) {
		cadences, _, _ := setup(t)
		cadence, err := cadences.CreateCadence(ctx, CadenceInput{
			Name:  "Old name",
			Steps: []StepInput{{DayNumber: ptr(0), ActionType: models.ActionTask, Label: "Research"}},
		})
		require.NoError(t, err)

		updated, err := cadences.UpdateCadence(ctx, cadence.ID, CadenceInput{Name: "New name"})
		require.NoError(t, err)
		assert.Equal(t, "New name", updated.Name)
		assert.Len(t, updated.Steps, 1)

		step, err := cadences.UpdateStep(ctx, cadence.ID, cadence.Steps[0].ID, StepInput{
			DayNumber: ptr(1), ActionType: models.ActionLinkedIn, Label: "Connect",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ActionLinkedIn, step.ActionType)

		_, err = cadences.UpdateStep(ctx, cadence.ID+100, cadence.Steps[0].ID, StepInput{
			DayNumber: ptr(1), ActionType: models.ActionLinkedIn, Label: "Connect",
		})
		assert.True(t, domain.IsNotFound(err))
	})
}
