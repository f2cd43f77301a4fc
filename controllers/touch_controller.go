package controller

import (
	"cadencecrm/services"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type TouchController struct {
	Touches *services.TouchLog
	Logger  *logrus.Entry
}

func NewTouchController(touches *services.TouchLog, logger *logrus.Entry) *TouchController {
	return &TouchController{Touches: touches, Logger: logger}
}

// LogTouch records an outreach interaction
func (tc *TouchController) LogTouch(c *fiber.Ctx) error {
	var input services.TouchInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	touch, err := tc.Touches.LogTouch(c.UserContext(), input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to log touch", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(touch))
}

// GetContactTouches pages through a contact's touches, newest first. The
// limit is not capped so a client can fetch the whole log in one page.
func (tc *TouchController) GetContactTouches(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}
	offset, limit := utils.OffsetLimitMax(c, 20, 0)

	page, err := tc.Touches.ListTouches(c.UserContext(), id, offset, limit)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch touches", err)
	}
	return c.JSON(utils.SuccessResponse(page))
}

func (tc *TouchController) GetTouch(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid touch ID", err)
	}

	touch, err := tc.Touches.GetTouch(c.UserContext(), id)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch touch", err)
	}
	return c.JSON(utils.SuccessResponse(touch))
}

func (tc *TouchController) UpdateTouch(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid touch ID", err)
	}

	var input services.TouchUpdate
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	touch, err := tc.Touches.UpdateTouch(c.UserContext(), id, input)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to update touch", err)
	}
	return c.JSON(utils.SuccessResponse(touch))
}

func (tc *TouchController) DeleteTouch(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid touch ID", err)
	}

	if err := tc.Touches.DeleteTouch(c.UserContext(), id); err != nil {
		return utils.HandleServiceError(c, "Failed to delete touch", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Touch deleted successfully",
	})
}
