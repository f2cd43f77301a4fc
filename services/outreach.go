package services

import (
	"context"
	"strings"

	"cadencecrm/domain"
	"cadencecrm/models"

	"github.com/sirupsen/logrus"
)

// EmailOverride lets the sender edit the step's email before it goes out
type EmailOverride struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RenderPlaceholders fills {{first_name}}, {{last_name}}, {{full_name}},
// {{company}} and {{title}} from the contact
func RenderPlaceholders(text string, contact *models.Contact) string {
	return strings.NewReplacer(
		"{{first_name}}", contact.FirstName,
		"{{last_name}}", contact.LastName,
		"{{full_name}}", contact.FullName(),
		"{{company}}", contact.Company,
		"{{title}}", contact.Title,
	).Replace(text)
}

// SendStepEmail renders the contact's pending email step, hands it to the
// mailer and then completes the step with an email touch. The mail leaves
// before the transaction starts, so a failed completion after a successful
// send is logged as such.
func (e *Engine) SendStepEmail(ctx context.Context, contactID, cadenceStepID uint, override EmailOverride) (*StepResult, error) {
	if e.mailer == nil {
		return nil, domain.NewUnavailableError("email delivery is not configured", nil)
	}

	db := e.db.WithContext(ctx)
	step, _, err := e.loadStep(db, contactID, cadenceStepID)
	if err != nil {
		return nil, err
	}
	if step.IsTerminal() {
		return nil, domain.NewAlreadyTerminalError(step.Status)
	}

	var cadenceStep models.CadenceStep
	if err := db.Preload("Template").First(&cadenceStep, cadenceStepID).Error; err != nil {
		return nil, notFoundOr(err, "cadence step")
	}
	if cadenceStep.ActionType != models.ActionEmail {
		return nil, domain.NewValidationError("step is not an email step")
	}

	var contact models.Contact
	if err := db.First(&contact, contactID).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}
	if contact.Email == "" {
		return nil, domain.NewValidationError("contact has no email address")
	}

	subject, body := pickEmailContent(&cadenceStep, override)
	if strings.TrimSpace(subject) == "" {
		return nil, domain.NewMissingFieldError("subject")
	}
	subject = RenderPlaceholders(subject, &contact)
	body = RenderPlaceholders(body, &contact)

	if err := e.mailer.Send(contact.Email, subject, body); err != nil {
		return nil, domain.NewUnavailableError("failed to send email", err)
	}

	result, err := e.CompleteStep(ctx, contactID, cadenceStepID, &TouchInput{
		TouchType: models.TouchEmail,
		Subject:   subject,
		Body:      body,
		Metadata:  map[string]interface{}{"to": contact.Email},
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"contact_id":      contactID,
			"cadence_step_id": cadenceStepID,
			"error":           err.Error(),
		}).Warn("email sent but step completion failed")
		return nil, err
	}
	return result, nil
}

func pickEmailContent(step *models.CadenceStep, override EmailOverride) (string, string) {
	subject, body := step.EmailSubject, step.EmailBody
	if step.Template != nil {
		if subject == "" {
			subject = step.Template.Subject
		}
		if body == "" {
			body = step.Template.Body
		}
	}
	if override.Subject != "" {
		subject = override.Subject
	}
	if override.Body != "" {
		body = override.Body
	}
	return subject, body
}
