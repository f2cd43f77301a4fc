package services

import (
	"context"
	"errors"
	"testing"

	"cadencecrm/domain"
	"cadencecrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, htmlBody})
	return nil
}

func TestRenderPlaceholders(t *testing.T) {
	contact := &models.Contact{FirstName: "Ada", LastName: "Lovelace", Company: "Analytical", Title: "CTO"}
	got := RenderPlaceholders("Hi {{first_name}}, {{full_name}} ({{title}} at {{company}}) {{unknown}}", contact)
	assert.Equal(t, "Hi Ada, Ada Lovelace (CTO at Analytical) {{unknown}}", got)
}

func TestSendStepEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - renders, sends and completes", func(t *testing.T) {
		db := setupTestDB(t)
		mailer := &fakeMailer{}
		engine, _ := newTestEngine(t, db, WithMailer(mailer))
		contact := createContact(t, db)
		cadence := createCadence(t, db, emailStep(0), phoneStep(2))
		_, err := engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		result, err := engine.SendStepEmail(ctx, contact.ID, cadence.Steps[0].ID, EmailOverride{})
		require.NoError(t, err)

		require.Len(t, mailer.sent, 1)
		assert.Equal(t, contact.Email, mailer.sent[0].to)
		assert.Equal(t, "Hi "+contact.FirstName, mailer.sent[0].subject)
		assert.Contains(t, mailer.sent[0].body, contact.Company)

		assert.Equal(t, models.StepCompleted, result.Step.Status)
		require.NotNil(t, result.Touch)
		assert.Equal(t, models.TouchEmail, result.Touch.TouchType)
		assert.Equal(t, mailer.sent[0].subject, result.Touch.Subject)
	})

	t.Run("Success - override wins", func(t *testing.T) {
		db := setupTestDB(t)
		mailer := &fakeMailer{}
		engine, _ := newTestEngine(t, db, WithMailer(mailer))
		contact := createContact(t, db)
		cadence := createCadence(t, db, emailStep(0))
		_, err := engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		_, err = engine.SendStepEmail(ctx, contact.ID, cadence.Steps[0].ID, EmailOverride{Subject: "Custom"})
		require.NoError(t, err)
		assert.Equal(t, "Custom", mailer.sent[0].subject)
	})

	t.Run("Error - no mailer configured", func(t *testing.T) {
		db := setupTestDB(t)
		engine, _ := newTestEngine(t, db)
		contact := createContact(t, db)
		cadence := createCadence(t, db, emailStep(0))
		_, err := engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		_, err = engine.SendStepEmail(ctx, contact.ID, cadence.Steps[0].ID, EmailOverride{})
		assert.True(t, domain.IsUnavailable(err))
	})

	t.Run("Error - not an email step", func(t *testing.T) {
		db := setupTestDB(t)
		mailer := &fakeMailer{}
		engine, _ := newTestEngine(t, db, WithMailer(mailer))
		contact := createContact(t, db)
		cadence := createCadence(t, db, phoneStep(0))
		_, err := engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		_, err = engine.SendStepEmail(ctx, contact.ID, cadence.Steps[0].ID, EmailOverride{})
		assert.True(t, domain.IsValidation(err))
		assert.Empty(t, mailer.sent)
	})

	t.Run("Error - delivery failure leaves the step pending", func(t *testing.T) {
		db := setupTestDB(t)
		mailer := &fakeMailer{err: errors.New("connection refused")}
		engine, _ := newTestEngine(t, db, WithMailer(mailer))
		contact := createContact(t, db)
		cadence := createCadence(t, db, emailStep(0))
		_, err := engine.EnrollContact(ctx, contact.ID, cadence.ID)
		require.NoError(t, err)

		_, err = engine.SendStepEmail(ctx, contact.ID, cadence.Steps[0].ID, EmailOverride{})
		assert.True(t, domain.IsUnavailable(err))

		due, err := engine.ListDueSteps(ctx, contact.ID, DueStepFilter{})
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})
}
