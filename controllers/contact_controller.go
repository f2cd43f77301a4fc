package controller

import (
	"errors"
	"strconv"
	"strings"

	"cadencecrm/models"
	"cadencecrm/services"
	"cadencecrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Engine *services.Engine
	Region string // default region for phone numbers without a country code
}

func NewContactController(db *gorm.DB, engine *services.Engine, region string, logger *logrus.Entry) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
		Engine: engine,
		Region: region,
	}
}

type contactInput struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"omitempty,max=100"`
	Company     string `json:"company" validate:"omitempty,max=200"`
	Title       string `json:"title" validate:"omitempty,max=200"`
	Email       string `json:"email" validate:"omitempty,max=320"`
	Phone       string `json:"phone" validate:"omitempty,max=40"`
	LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	Notes       string `json:"notes"`
	TagIDs      []uint `json:"tag_ids"`
}

// apply validates and normalizes the input onto contact
func (cc *ContactController) apply(input contactInput, contact *models.Contact) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	email, err := utils.NormalizeEmail(input.Email)
	if err != nil {
		return err
	}
	phone, err := utils.NormalizePhone(input.Phone, cc.Region)
	if err != nil {
		return err
	}

	contact.FirstName = strings.TrimSpace(input.FirstName)
	contact.LastName = strings.TrimSpace(input.LastName)
	contact.Company = strings.TrimSpace(input.Company)
	contact.Title = strings.TrimSpace(input.Title)
	contact.Email = email
	contact.Phone = phone
	contact.LinkedInURL = strings.TrimSpace(input.LinkedInURL)
	contact.Notes = input.Notes
	return nil
}

// CreateContact creates a new contact, optionally tagged
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	var contact models.Contact
	if err := cc.apply(input, &contact); err != nil {
		return utils.HandleServiceError(c, "Failed to create contact", err)
	}

	tx := cc.DB.WithContext(c.UserContext()).Begin()
	if err := tx.Create(&contact).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	if len(input.TagIDs) > 0 {
		var tags []models.Tag
		if err := tx.Where("id IN ?", input.TagIDs).Find(&tags).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load tags", err)
		}
		if len(tags) != len(input.TagIDs) {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
		}
		if err := tx.Model(&contact).Association("Tags").Append(&tags); err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to tag contact", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	cc.Logger.WithField("contact_id", contact.ID).Info("contact created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts returns a paginated, filtered list of contacts
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := cc.DB.WithContext(c.UserContext()).Model(&models.Contact{})

	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		like := "%" + q + "%"
		query = query.Where(
			"LOWER(contacts.first_name) LIKE ? OR LOWER(contacts.last_name) LIKE ? OR LOWER(contacts.email) LIKE ? OR LOWER(contacts.company) LIKE ?",
			like, like, like, like,
		)
	}
	if company := strings.ToLower(strings.TrimSpace(c.Query("company"))); company != "" {
		query = query.Where("LOWER(contacts.company) LIKE ?", "%"+company+"%")
	}
	if tag := strings.TrimSpace(c.Query("tag")); tag != "" {
		query = query.Joins("JOIN contact_tags ON contact_tags.contact_id = contacts.id").
			Joins("JOIN tags ON tags.id = contact_tags.tag_id AND tags.deleted_at IS NULL").
			Where("tags.name = ?", tag)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count contacts", err)
	}

	contacts := []models.Contact{}
	if err := query.Preload("Tags").
		Order("contacts.last_name ASC").Order("contacts.first_name ASC").Order("contacts.id ASC").
		Offset(offset).Limit(limit).
		Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  contacts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetContact returns a single contact with tags
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	var contact models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Preload("Tags").First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	return c.JSON(utils.SuccessResponse(contact))
}

// UpdateContact replaces a contact's profile fields
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	db := cc.DB.WithContext(c.UserContext())
	var contact models.Contact
	if err := db.First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	if err := cc.apply(input, &contact); err != nil {
		return utils.HandleServiceError(c, "Failed to update contact", err)
	}
	if err := db.Save(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	db.Preload("Tags").First(&contact, id)
	return c.JSON(utils.SuccessResponse(contact))
}

// DeleteContact soft-deletes a contact. Tag links are removed and active
// enrollments ended; touches and cadence history are kept.
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	tx := cc.DB.WithContext(c.UserContext()).Begin()

	var contact models.Contact
	if err := tx.First(&contact, id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	if err := tx.Model(&contact).Association("Tags").Clear(); err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove tags", err)
	}

	ended, err := cc.Engine.RemoveFromAllCadences(tx, contact.ID)
	if err != nil {
		tx.Rollback()
		return utils.HandleServiceError(c, "Failed to remove contact from cadences", err)
	}

	if err := tx.Delete(&contact).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	cc.Logger.WithFields(logrus.Fields{
		"contact_id":        contact.ID,
		"enrollments_ended": ended,
	}).Info("contact deleted")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact deleted successfully",
	})
}

// AddTag links a tag to a contact, by id or by name. Unknown names are created.
func (cc *ContactController) AddTag(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	var input struct {
		TagID uint   `json:"tag_id"`
		Name  string `json:"name" validate:"omitempty,max=100"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.HandleServiceError(c, "Validation failed", err)
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.TagID == 0 && input.Name == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "tag_id or name is required", nil)
	}

	db := cc.DB.WithContext(c.UserContext())
	var contact models.Contact
	if err := db.First(&contact, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var tag models.Tag
	if input.TagID != 0 {
		if err := db.First(&tag, input.TagID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
		}
	} else if err := db.Where(models.Tag{Name: input.Name}).FirstOrCreate(&tag).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create tag", err)
	}

	if err := db.Model(&contact).Association("Tags").Append(&tag); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to tag contact", err)
	}

	db.Preload("Tags").First(&contact, id)
	return c.JSON(utils.SuccessResponse(contact))
}

// RemoveTag unlinks a tag from a contact
func (cc *ContactController) RemoveTag(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}
	tagID, err := utils.ParamID(c, "tagId")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid tag ID", err)
	}

	db := cc.DB.WithContext(c.UserContext())
	var contact models.Contact
	if err := db.First(&contact, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	var tag models.Tag
	if err := db.First(&tag, tagID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Tag not found", nil)
	}

	if err := db.Model(&contact).Association("Tags").Delete(&tag); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to untag contact", err)
	}

	db.Preload("Tags").First(&contact, id)
	return c.JSON(utils.SuccessResponse(contact))
}

// GetContactEnrollments lists every cadence the contact has been in
func (cc *ContactController) GetContactEnrollments(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.HandleServiceError(c, "Invalid contact ID", err)
	}

	enrollments, err := cc.Engine.ListEnrollments(c.UserContext(), id)
	if err != nil {
		return utils.HandleServiceError(c, "Failed to fetch enrollments", err)
	}
	return c.JSON(utils.SuccessResponse(enrollments))
}
