package controller

import (
	"errors"

	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewTemplateController(db *gorm.DB, logger *logrus.Entry) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type templateInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Subject  string `json:"subject" validate:"max=500"`
	Body     string `json:"body"`
	Category string `json:"category" validate:"max=100"`
}

// CreateTemplate stores a reusable email template
func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.HandleServiceError(c, "Validation failed", err)
	}

	template := models.Template{
		Name:     input.Name,
		Subject:  input.Subject,
		Body:     input.Body,
		Category: input.Category,
	}
	if err := tc.DB.WithContext(c.UserContext()).Create(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(template))
}

// GetTemplates lists templates, optionally by category
func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	query := tc.DB.WithContext(c.UserContext()).Order("name ASC")
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	templates := []models.Template{}
	if err := query.Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}
	return c.JSON(utils.SuccessResponse(templates))
}

// GetTemplate returns a single template
func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	template, err := tc.load(c)
	if err != nil || template == nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(template))
}

// UpdateTemplate replaces a template's content. Steps that copied the
// content earlier keep their copy.
func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	template, err := tc.load(c)
	if err != nil || template == nil {
		return err
	}

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.HandleServiceError(c, "Validation failed", err)
	}

	template.Name = input.Name
	template.Subject = input.Subject
	template.Body = input.Body
	template.Category = input.Category
	if err := tc.DB.WithContext(c.UserContext()).Save(template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", err)
	}
	return c.JSON(utils.SuccessResponse(template))
}

// DeleteTemplate removes a template and detaches it from steps
func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	template, err := tc.load(c)
	if err != nil || template == nil {
		return err
	}

	tx := tc.DB.WithContext(c.UserContext()).Begin()
	if err := tx.Model(&models.CadenceStep{}).Where("template_id = ?", template.ID).
		Update("template_id", nil).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to detach template", err)
	}
	if err := tx.Delete(template).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete template", err)
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete template", err)
	}

	tc.Logger.WithField("template_id", template.ID).Info("template deleted")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Template deleted successfully",
	})
}

// load writes the error response itself; a nil template means it did
func (tc *TemplateController) load(c *fiber.Ctx) (*models.Template, error) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return nil, utils.HandleServiceError(c, "Invalid template ID", err)
	}

	var template models.Template
	if err := tc.DB.WithContext(c.UserContext()).First(&template, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch template", err)
	}
	return &template, nil
}
