package services

import (
	"io"
	"strings"
	"testing"
	"time"

	"cadencecrm/config"
	"cadencecrm/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, time.January, 10, 15, 0, 0, 0, time.UTC)

// setupTestDB opens a fresh in-memory database per test. A single connection
// keeps the shared-cache database alive and serializes transactions.
func setupTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// clock is a settable time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) tick(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, db *gorm.DB, opts ...Option) (*Engine, *clock) {
	t.Helper()
	c := &clock{t: testNow}
	touches := NewTouchLog(db, testLogger())
	opts = append([]Option{WithClock(c.now)}, opts...)
	return NewEngine(db, touches, testLogger(), opts...), c
}

func createContact(t *testing.T, db *gorm.DB) *models.Contact {
	t.Helper()
	contact := &models.Contact{
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Company:   gofakeit.Company(),
		Email:     strings.ToLower(gofakeit.Email()),
	}
	require.NoError(t, db.Create(contact).Error)
	return contact
}

// createCadence builds a cadence with one step per (day, action) pair
func createCadence(t *testing.T, db *gorm.DB, steps ...models.CadenceStep) *models.Cadence {
	t.Helper()
	cadence := &models.Cadence{Name: gofakeit.BuzzWord() + " outreach"}
	require.NoError(t, db.Create(cadence).Error)
	for i := range steps {
		steps[i].CadenceID = cadence.ID
		if steps[i].Label == "" {
			steps[i].Label = gofakeit.HackerVerb()
		}
		require.NoError(t, db.Create(&steps[i]).Error)
	}
	cadence.Steps = steps
	return cadence
}

func emailStep(day int) models.CadenceStep {
	return models.CadenceStep{
		DayNumber:    day,
		ActionType:   models.ActionEmail,
		EmailSubject: "Hi {{first_name}}",
		EmailBody:    "<p>Quick question about {{company}}</p>",
	}
}

func phoneStep(day int) models.CadenceStep {
	return models.CadenceStep{DayNumber: day, ActionType: models.ActionPhone}
}

func historyEvents(t *testing.T, db *gorm.DB, contactID, cadenceID uint) []models.CadenceHistoryEvent {
	t.Helper()
	var events []models.CadenceHistoryEvent
	require.NoError(t, db.Where("contact_id = ? AND cadence_id = ?", contactID, cadenceID).
		Order("id ASC").Find(&events).Error)
	return events
}

func eventTypes(events []models.CadenceHistoryEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}
