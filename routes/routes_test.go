package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cadencecrm/config"
	"cadencecrm/models"
	"cadencecrm/utils"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestApp(t *testing.T, cfg config.Config) (*fiber.App, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared&_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.MigrateDB(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "US"
	}
	app := fiber.New()
	SetupRoutes(app, db, cfg, NewServices(db, log), log)
	return app, db
}

type apiResponse struct {
	status int
	body   map[string]interface{}
}

func (r apiResponse) data() map[string]interface{} {
	d, _ := r.body["data"].(map[string]interface{})
	return d
}

func (r apiResponse) list() []interface{} {
	l, _ := r.body["data"].([]interface{})
	return l
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, headers ...string) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode, body: map[string]interface{}{}}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func id(m map[string]interface{}) uint {
	v, _ := m["ID"].(float64)
	return uint(v)
}

func createContact(t *testing.T, app *fiber.App) uint {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/api/v1/contacts", fiber.Map{
		"first_name": gofakeit.FirstName(),
		"last_name":  gofakeit.LastName(),
		"company":    gofakeit.Company(),
		"email":      gofakeit.Email(),
	})
	require.Equal(t, fiber.StatusCreated, resp.status, resp.body)
	return id(resp.data())
}

// createCadence returns the cadence id and its step ids in day order
func createCadence(t *testing.T, app *fiber.App) (uint, []uint) {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/api/v1/cadences", fiber.Map{
		"name": "Outbound",
		"steps": []fiber.Map{
			{"day_number": 0, "action_type": "email", "label": "Intro email", "email_subject": "Hi {{first_name}}"},
			{"day_number": 3, "action_type": "phone", "label": "First call"},
		},
	})
	require.Equal(t, fiber.StatusCreated, resp.status, resp.body)

	var stepIDs []uint
	for _, s := range resp.data()["steps"].([]interface{}) {
		stepIDs = append(stepIDs, id(s.(map[string]interface{})))
	}
	return id(resp.data()), stepIDs
}

func TestCadenceFlow(t *testing.T) {
	app, db := setupTestApp(t, config.Config{})
	contactID := createContact(t, app)
	cadenceID, steps := createCadence(t, app)
	require.Len(t, steps, 2)

	enrollPath := fmt.Sprintf("/api/v1/cadences/%d/contacts", cadenceID)
	stepPath := func(stepID uint, action string) string {
		return fmt.Sprintf("/api/v1/contacts/%d/steps/%d/%s", contactID, stepID, action)
	}

	t.Run("Success - enroll", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, enrollPath, fiber.Map{"contact_id": contactID})
		assert.Equal(t, fiber.StatusCreated, resp.status)
		assert.Equal(t, "active", resp.data()["status"])
	})

	t.Run("Error - enroll twice", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, enrollPath, fiber.Map{"contact_id": contactID})
		assert.Equal(t, fiber.StatusConflict, resp.status)
		assert.Equal(t, "CONFLICT", resp.body["code"])
		assert.Equal(t, "contact is already active in this cadence", resp.body["error"])
	})

	t.Run("Success - due steps", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d/due-steps?cadence_id=%d", contactID, cadenceID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)
		require.Len(t, resp.list(), 1)
		assert.EqualValues(t, steps[0], resp.list()[0].(map[string]interface{})["cadence_step_id"])
	})

	t.Run("Error - call without notes", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[0], "complete"), fiber.Map{
			"touch": fiber.Map{"touch_type": "call", "body": "  "},
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
		assert.Equal(t, "call notes are required", resp.body["error"])
	})

	t.Run("Success - complete with a touch", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[0], "complete"), fiber.Map{
			"touch": fiber.Map{"touch_type": "email", "subject": "Intro", "body": "<p>Hello</p>"},
		})
		require.Equal(t, fiber.StatusOK, resp.status, resp.body)
		assert.Equal(t, true, resp.data()["event_recorded"])
		step := resp.data()["step"].(map[string]interface{})
		assert.Equal(t, "completed", step["status"])
		assert.NotNil(t, resp.data()["touch"])
	})

	t.Run("Error - complete twice", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[0], "complete"), nil)
		assert.Equal(t, fiber.StatusConflict, resp.status)
		assert.Equal(t, "step is already completed", resp.body["error"])
	})

	t.Run("Error - postpone into the past", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[1], "postpone"), fiber.Map{"new_due_on": "2000-01-01"})
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.status)
		assert.Equal(t, "INVALID_DATE", resp.body["code"])
	})

	t.Run("Success - postpone", func(t *testing.T) {
		future := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[1], "postpone"), fiber.Map{"new_due_on": future})
		assert.Equal(t, fiber.StatusOK, resp.status, resp.body)
	})

	t.Run("Error - postpone back toward today", func(t *testing.T) {
		earlier := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[1], "postpone"), fiber.Map{"new_due_on": earlier})
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.status)
		assert.Equal(t, "INVALID_DATE", resp.body["code"])
	})

	t.Run("Error - send email without a mailer", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[1], "send-email"), nil)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.status)
	})

	t.Run("Success - skip completes the cadence", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, stepPath(steps[1], "skip"), nil)
		require.Equal(t, fiber.StatusOK, resp.status, resp.body)
		enrollment := resp.data()["enrollment"].(map[string]interface{})
		assert.Equal(t, "completed", enrollment["status"])
	})

	t.Run("Success - timeline", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet,
			fmt.Sprintf("/api/v1/cadences/%d/contacts/%d/timeline?limit=10", cadenceID, contactID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)

		items := resp.data()["items"].([]interface{})
		var labels []string
		for _, it := range items {
			labels = append(labels, it.(map[string]interface{})["label"].(string))
		}
		require.Len(t, labels, 5)
		assert.Equal(t, "Cadence completed", labels[0])
		assert.Equal(t, "Step skipped", labels[1])
		assert.True(t, strings.HasPrefix(labels[2], "Step postponed to "))
		assert.Equal(t, "Step completed", labels[3])
		assert.Equal(t, "Added to cadence", labels[4])
		assert.Equal(t, false, resp.data()["has_older"])
	})

	t.Run("Success - touches", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d/touches?offset=0&limit=5", contactID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)
		assert.Len(t, resp.data()["touches"], 1)
		assert.Equal(t, false, resp.data()["has_newer"])

		var count int64
		db.Model(&models.Touch{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func TestTouchEndpoints(t *testing.T) {
	app, _ := setupTestApp(t, config.Config{})
	contactID := createContact(t, app)

	t.Run("Success - a bare call is a valid touch", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, "/api/v1/touches", fiber.Map{
			"contact_id": contactID,
			"touch_type": "call",
		})
		assert.Equal(t, fiber.StatusCreated, resp.status, resp.body)
	})

	t.Run("Error - missing touch type", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, "/api/v1/touches", fiber.Map{"contact_id": contactID})
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
		assert.Equal(t, "touch_type is required", resp.body["error"])
	})

	t.Run("Success - update and delete", func(t *testing.T) {
		created := doRequest(t, app, http.MethodPost, "/api/v1/touches", fiber.Map{
			"contact_id": contactID,
			"touch_type": "linkedin",
			"body":       "connection request",
		})
		require.Equal(t, fiber.StatusCreated, created.status)
		path := fmt.Sprintf("/api/v1/touches/%v", created.data()["id"])

		updated := doRequest(t, app, http.MethodPut, path, fiber.Map{"body": "accepted"})
		require.Equal(t, fiber.StatusOK, updated.status)
		assert.Equal(t, "accepted", updated.data()["body"])

		assert.Equal(t, fiber.StatusOK, doRequest(t, app, http.MethodDelete, path, nil).status)
		assert.Equal(t, fiber.StatusNotFound, doRequest(t, app, http.MethodGet, path, nil).status)
	})
}

func TestTouchListLimit(t *testing.T) {
	app, db := setupTestApp(t, config.Config{})
	contactID := createContact(t, app)

	base := time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)
	touches := make([]models.Touch, 0, 130)
	for i := 0; i < 130; i++ {
		touches = append(touches, models.Touch{
			ContactID: contactID,
			TouchType: models.TouchOther,
			TouchedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, db.CreateInBatches(&touches, 50).Error)

	t.Run("Success - whole log in one page", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d/touches?offset=0&limit=130", contactID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)
		assert.Len(t, resp.data()["touches"], 130)
		assert.EqualValues(t, 130, resp.data()["total"])
		assert.Equal(t, false, resp.data()["has_older"])
	})

	t.Run("Success - default page size", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d/touches", contactID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)
		assert.Len(t, resp.data()["touches"], 20)
		assert.Equal(t, true, resp.data()["has_older"])
	})
}

func TestContactEndpoints(t *testing.T) {
	app, db := setupTestApp(t, config.Config{})

	t.Run("Success - phone and email are normalized", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, "/api/v1/contacts", fiber.Map{
			"first_name": "Ada",
			"email":      "Ada@Example.com",
			"phone":      "(415) 555-2671",
		})
		require.Equal(t, fiber.StatusCreated, resp.status, resp.body)
		assert.Equal(t, "ada@example.com", resp.data()["email"])
		assert.Equal(t, "+14155552671", resp.data()["phone"])
	})

	t.Run("Error - validation", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, "/api/v1/contacts", fiber.Map{"last_name": "Nobody"})
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
		assert.Equal(t, "first_name is required", resp.body["error"])

		resp = doRequest(t, app, http.MethodPost, "/api/v1/contacts", fiber.Map{"first_name": "A", "phone": "nope"})
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
	})

	t.Run("Success - tags and filtering", func(t *testing.T) {
		contactID := createContact(t, app)
		resp := doRequest(t, app, http.MethodPost, fmt.Sprintf("/api/v1/contacts/%d/tags", contactID), fiber.Map{"name": "vip"})
		require.Equal(t, fiber.StatusOK, resp.status, resp.body)

		resp = doRequest(t, app, http.MethodGet, "/api/v1/contacts?tag=vip", nil)
		require.Equal(t, fiber.StatusOK, resp.status)
		assert.EqualValues(t, 1, resp.body["total"])

		resp = doRequest(t, app, http.MethodPost, "/api/v1/tags", fiber.Map{"name": "vip"})
		assert.Equal(t, fiber.StatusConflict, resp.status)
	})

	t.Run("Success - delete ends enrollments", func(t *testing.T) {
		contactID := createContact(t, app)
		cadenceID, _ := createCadence(t, app)
		resp := doRequest(t, app, http.MethodPost, fmt.Sprintf("/api/v1/cadences/%d/contacts", cadenceID), fiber.Map{"contact_id": contactID})
		require.Equal(t, fiber.StatusCreated, resp.status)

		resp = doRequest(t, app, http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d", contactID), nil)
		require.Equal(t, fiber.StatusOK, resp.status)

		var enrollment models.ContactCadence
		require.NoError(t, db.Where("contact_id = ?", contactID).First(&enrollment).Error)
		assert.Equal(t, models.EnrollmentEnded, enrollment.Status)

		var removed int64
		db.Model(&models.CadenceHistoryEvent{}).
			Where("contact_id = ? AND event_type = ?", contactID, models.EventContactRemoved).Count(&removed)
		assert.Equal(t, int64(1), removed)

		resp = doRequest(t, app, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d", contactID), nil)
		assert.Equal(t, fiber.StatusNotFound, resp.status)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Error - token required when a secret is set", func(t *testing.T) {
		app, _ := setupTestApp(t, config.Config{JWTSecret: "test-secret"})

		resp := doRequest(t, app, http.MethodGet, "/api/v1/cadences", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.status)

		resp = doRequest(t, app, http.MethodGet, "/api/v1/cadences", nil, "Authorization", "Token abc")
		assert.Equal(t, fiber.StatusUnauthorized, resp.status)

		token, err := utils.GenerateJWTToken("user-1", "test-secret", time.Hour)
		require.NoError(t, err)
		resp = doRequest(t, app, http.MethodGet, "/api/v1/cadences", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, fiber.StatusOK, resp.status)
	})

	t.Run("Error - mutations are rate limited", func(t *testing.T) {
		app, _ := setupTestApp(t, config.Config{RateLimitMax: 2})

		for i := 0; i < 2; i++ {
			resp := doRequest(t, app, http.MethodPost, "/api/v1/tags", fiber.Map{"name": fmt.Sprintf("tag-%d", i)})
			require.Equal(t, fiber.StatusCreated, resp.status)
		}
		resp := doRequest(t, app, http.MethodPost, "/api/v1/tags", fiber.Map{"name": "one-too-many"})
		assert.Equal(t, fiber.StatusTooManyRequests, resp.status)

		resp = doRequest(t, app, http.MethodGet, "/api/v1/tags", nil)
		assert.Equal(t, fiber.StatusOK, resp.status)
	})

	t.Run("Success - health, metrics and 404", func(t *testing.T) {
		app, _ := setupTestApp(t, config.Config{})

		assert.Equal(t, fiber.StatusOK, doRequest(t, app, http.MethodGet, "/health", nil).status)
		assert.Equal(t, fiber.StatusOK, doRequest(t, app, http.MethodGet, "/metrics", nil).status)

		resp := doRequest(t, app, http.MethodGet, "/api/v1/nothing-here", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.status)
		assert.Equal(t, "Not Found", resp.body["error"])
	})

	t.Run("Success - CORS preflight", func(t *testing.T) {
		app, _ := setupTestApp(t, config.Config{AllowedOrigins: []string{"https://app.example.com"}})

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/contacts", nil)
		req.Header.Set("Origin", "https://app.example.com")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
	})
}
