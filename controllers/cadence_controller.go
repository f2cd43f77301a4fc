package controller

import (
	"cadencecrm/services"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type CadenceController struct {
	Cadences *services.Cadences
	Engine   *services.Engine
	Timeline *services.Timeline
	Logger   *logrus.Entry
}

func NewCadenceController(cadences *services.Cadences, engine *services.Engine, timeline *services.Timeline, logger *logrus.Entry) *CadenceController {
	return &CadenceController{
		Cadences: cadences,
		Engine:   engine,
		Timeline: timeline,
		Logger:   logger,
	}
}

// CreateCadence creates a cadence with optional initial steps
func (cc *CadenceController) CreateCadence(c *fiber.Ctx) error {
	var input services.CadenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	cadence, err := cc.Cadences.CreateCadence(c.UserContext(), input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to create cadence", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(cadence))
}

func (cc *CadenceController) GetCadences(c *fiber.Ctx) error {
	cadences, err := cc.Cadences.ListCadences(c.UserContext())
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch cadences", err)
	}
	return c.JSON(utils.SuccessResponse(cadences))
}

func (cc *CadenceController) GetCadence(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	cadence, err := cc.Cadences.GetCadence(c.UserContext(), id)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch cadence", err)
	}
	return c.JSON(utils.SuccessResponse(cadence))
}

func (cc *CadenceController) UpdateCadence(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	var input services.CadenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	cadence, err := cc.Cadences.UpdateCadence(c.UserContext(), id, input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to update cadence", err)
	}
	return c.JSON(utils.SuccessResponse(cadence))
}

func (cc *CadenceController) DeleteCadence(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	if err := cc.Cadences.DeleteCadence(c.UserContext(), id); err != nil {
		return utils.HandleServiceError(c, "Failed to delete cadence", err)
	}

	cc.Logger.WithField("cadence_id", id).Info("cadence deleted")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cadence deleted successfully",
	})
}

// AddStep appends a step to a cadence
func (cc *CadenceController) AddStep(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	var input services.StepInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	step, err := cc.Cadences.AddStep(c.UserContext(), id, input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to add step", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(step))
}

func (cc *CadenceController) UpdateStep(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}
	stepID, err := utils.ParamID(c, "stepId")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid step ID", err)
	}

	var input services.StepInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	step, err := cc.Cadences.UpdateStep(c.UserContext(), id, stepID, input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to update step", err)
	}
	return c.JSON(utils.SuccessResponse(step))
}

func (cc *CadenceController) DeleteStep(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}
	stepID, err := utils.ParamID(c, "stepId")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid step ID", err)
	}

	if err := cc.Cadences.DeleteStep(c.UserContext(), id, stepID); err != nil {
		return utils.HandleServiceError(c, "Failed to delete step", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Step deleted successfully",
	})
}

// GetEnrollments lists a cadence's enrollments, filtered by ?status=
func (cc *CadenceController) GetEnrollments(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	enrollments, err := cc.Cadences.ListCadenceEnrollments(c.UserContext(), id, c.Query("status"))
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch enrollments", err)
	}
	return c.JSON(utils.SuccessResponse(enrollments))
}

// EnrollContact adds a contact to a cadence
func (cc *CadenceController) EnrollContact(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid cadence ID", err)
	}

	var input struct {
		ContactID uint `json:"contact_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.HandleServiceError(c, "Validation failed", err)
	}

	enrollment, err := cc.Engine.EnrollContact(c.UserContext(), input.ContactID, id)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to enroll contact", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(enrollment))
}

// RemoveContact takes a contact out of a cadence
func (cc *CadenceController) RemoveContact(c *fiber.Ctx) error {
	id, contactID, err := cadenceContactParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	if err := cc.Engine.RemoveContact(c.UserContext(), contactID, id); err != nil {
		return utils.HandleServiceError(c, "Failed to remove contact", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact removed from cadence",
	})
}

// EndEnrollment stops a contact's cadence early
func (cc *CadenceController) EndEnrollment(c *fiber.Ctx) error {
	id, contactID, err := cadenceContactParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}

	if err := cc.Engine.EndEnrollment(c.UserContext(), contactID, id); err != nil {
		return utils.HandleServiceError(c, "Failed to end cadence", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cadence ended",
	})
}

// GetTimeline returns the activity timeline of a contact in a cadence
func (cc *CadenceController) GetTimeline(c *fiber.Ctx) error {
	id, contactID, err := cadenceContactParams(c)
	if err != nil {
		return utils.HandleServiceError(c, "Invalid request", err)
	}
	offset, limit := utils.OffsetLimit(c, 20)

	page, err := cc.Timeline.GetTimeline(c.UserContext(), id, contactID, offset, limit)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch timeline", err)
	}
	return c.JSON(utils.SuccessResponse(page))
}

func cadenceContactParams(c *fiber.Ctx) (uint, uint, error) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	contactID, err := utils.ParamID(c, "contactId")
	if err != nil {
		return 0, 0, err
	}
	return id, contactID, nil
}
