package services

import (
	"strings"
	"time"

	"cadencecrm/domain"
)

const (
	dateLayout      = "2006-01-02"
	labelDateLayout = "Jan 2, 2006"
)

// dateOf truncates t to midnight UTC
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDueDate accepts YYYY-MM-DD and returns midnight UTC of that day
func parseDueDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, domain.NewInvalidDateError("new_due_on must be a date in YYYY-MM-DD format")
	}
	return t, nil
}
