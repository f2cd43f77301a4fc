package utils

import (
	"strconv"

	"cadencecrm/domain"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// HandleServiceError maps a service error onto the matching HTTP status.
// Anything that is not a DomainError is reported as a 500.
func HandleServiceError(c *fiber.Ctx, fallback string, err error) error {
	var status int
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation:
		status = fiber.StatusBadRequest
	case domain.ErrCodeInvalidDate:
		status = fiber.StatusUnprocessableEntity
	case domain.ErrCodeNotFound:
		status = fiber.StatusNotFound
	case domain.ErrCodeConflict:
		status = fiber.StatusConflict
	case domain.ErrCodeUnavailable:
		status = fiber.StatusServiceUnavailable
	default:
		LogError("request_failed", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   fallback,
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   domain.MessageOf(err),
		"code":    domain.CodeOf(err),
	})
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// ParamID reads a numeric route parameter, rejecting zero and garbage
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id := ParseUint(c.Params(name))
	if id == 0 {
		return 0, domain.NewValidationError("invalid " + name)
	}
	return id, nil
}

// PaginatedResponse structure for paginated results
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// OffsetLimit reads offset/limit query parameters with sane bounds
func OffsetLimit(c *fiber.Ctx, defaultLimit int) (int, int) {
	return OffsetLimitMax(c, defaultLimit, 100)
}

// OffsetLimitMax is OffsetLimit with a caller-chosen cap. maxLimit <= 0
// leaves the limit uncapped.
func OffsetLimitMax(c *fiber.Ctx, defaultLimit, maxLimit int) (int, int) {
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultLimit)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
