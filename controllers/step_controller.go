package controller

import (
	"strings"

	"cadencecrm/models"
	"cadencecrm/services"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// StepController exposes per-contact step progression
type StepController struct {
	Engine *services.Engine
	Logger *logrus.Entry
}

func NewStepController(engine *services.Engine, logger *logrus.Entry) *StepController {
	return &StepController{Engine: engine, Logger: logger}
}

type completeStepInput struct {
	Touch *services.TouchInput `json:"touch"`
}

// GetDueSteps lists the contact's steps that are due on their current cadence day
func (sc *StepController) GetDueSteps(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	filter := services.DueStepFilter{CadenceID: utils.ParseUint(c.Query("cadence_id"))}
	steps, err := sc.Engine.ListDueSteps(c.UserContext(), id, filter)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch due steps", err)
	}
	return c.JSON(utils.SuccessResponse(steps))
}

// CompleteStep completes a step, optionally logging the touch that did it.
// Calls must carry notes.
func (sc *StepController) CompleteStep(c *fiber.Ctx) error {
	contactID, stepID, err := contactStepParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	var input completeStepInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}
	if input.Touch != nil && input.Touch.TouchType == models.TouchCall && strings.TrimSpace(input.Touch.Body) == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "call notes are required", nil)
	}

	result, err := sc.Engine.CompleteStep(c.UserContext(), contactID, stepID, input.Touch)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to complete step", err)
	}
	sc.logTransition("completed", contactID, stepID, result)
	return c.JSON(utils.SuccessResponse(result))
}

func (sc *StepController) SkipStep(c *fiber.Ctx) error {
	contactID, stepID, err := contactStepParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	result, err := sc.Engine.SkipStep(c.UserContext(), contactID, stepID)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to skip step", err)
	}
	sc.logTransition("skipped", contactID, stepID, result)
	return c.JSON(utils.SuccessResponse(result))
}

// PostponeStep moves a pending step to a new due date (YYYY-MM-DD)
func (sc *StepController) PostponeStep(c *fiber.Ctx) error {
	contactID, stepID, err := contactStepParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	var input struct {
		NewDueOn string `json:"new_due_on"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	result, err := sc.Engine.PostponeStep(c.UserContext(), contactID, stepID, input.NewDueOn)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to postpone step", err)
	}
	sc.logTransition("postponed", contactID, stepID, result)
	return c.JSON(utils.SuccessResponse(result))
}

// SendStepEmail sends the step's email and completes the step
func (sc *StepController) SendStepEmail(c *fiber.Ctx) error {
	contactID, stepID, err := contactStepParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	var override services.EmailOverride
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&override); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	result, err := sc.Engine.SendStepEmail(c.UserContext(), contactID, stepID, override)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to send email", err)
	}
	sc.logTransition("email_sent", contactID, stepID, result)
	return c.JSON(utils.SuccessResponse(result))
}

func (sc *StepController) logTransition(action string, contactID, stepID uint, result *services.StepResult) {
	entry := sc.Logger.WithFields(logrus.Fields{
		"action":          action,
		"contact_id":      contactID,
		"cadence_step_id": stepID,
	})
	if !result.EventRecorded {
		entry.Warn("step updated without history event")
		return
	}
	entry.Info("step updated")
}

func contactStepParams(c *fiber.Ctx) (uint, uint, error) {
	contactID, err := utils.ParamID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	stepID, err := utils.ParamID(c, "stepId")
	if err != nil {
		return 0, 0, err
	}
	return contactID, stepID, nil
}
