package controller

import (
	"errors"
	"strings"

	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TagController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewTagController(db *gorm.DB, logger *logrus.Entry) *TagController {
	return &TagController{DB: db, Logger: logger}
}

type tagWithCount struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	ContactCount int64  `json:"contact_count"`
}

// CreateTag creates a tag; names are unique
func (tc *TagController) CreateTag(c *fiber.Ctx) error {
	var input struct {
		Name string `json:"name" validate:"required,max=100"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return utils.HandleServiceError(c, "Validation failed", err)
	}

	db := tc.DB.WithContext(c.UserContext())
	var existing models.Tag
	if err := db.Where("name = ?", input.Name).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Tag with this name already exists", nil)
	}

	tag := models.Tag{Name: input.Name}
	if err := db.Create(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Tag with this name already exists", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create tag", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(tag))
}

// GetTags lists tags with how many contacts carry each
func (tc *TagController) GetTags(c *fiber.Ctx) error {
	tags := []tagWithCount{}
	err := tc.DB.WithContext(c.UserContext()).
		Table("tags").
		Select("tags.id, tags.name, COUNT(contacts.id) AS contact_count").
		Joins("LEFT JOIN contact_tags ON contact_tags.tag_id = tags.id").
		Joins("LEFT JOIN contacts ON contacts.id = contact_tags.contact_id AND contacts.deleted_at IS NULL").
		Where("tags.deleted_at IS NULL").
		Group("tags.id, tags.name").
		Order("tags.name ASC").
		Scan(&tags).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tags", err)
	}
	return c.JSON(utils.SuccessResponse(tags))
}

// DeleteTag removes a tag and its contact links. The row is hard deleted so
// the name can be reused.
func (tc *TagController) DeleteTag(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid tag ID", err)
	}

	tx := tc.DB.WithContext(c.UserContext()).Begin()

	var tag models.Tag
	if err := tx.First(&tag, id).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
	}
	if err := tx.Model(&tag).Association("Contacts").Clear(); err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to untag contacts", err)
	}
	if err := tx.Unscoped().Delete(&tag).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete tag", err)
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete tag", err)
	}

	tc.Logger.WithField("tag_id", id).Info("tag deleted")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Tag deleted successfully",
	})
}
