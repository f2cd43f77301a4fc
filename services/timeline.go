package services

import (
	"context"
	"time"

	"cadencecrm/domain"
	"cadencecrm/models"

	"gorm.io/gorm"
)

// TimelineTouch is the touch detail shown on a completed-step entry
type TimelineTouch struct {
	ID        uint      `json:"id"`
	TouchType string    `json:"touch_type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	TouchedAt time.Time `json:"touched_at"`
}

// TimelineItem is one rendered history event
type TimelineItem struct {
	ID            uint                   `json:"id"`
	EventType     string                 `json:"event_type"`
	Label         string                 `json:"label"`
	EventAt       time.Time              `json:"event_at"`
	Metadata      map[string]interface{} `json:"metadata"`
	CadenceStepID *uint                  `json:"cadence_step_id,omitempty"`
	StepLabel     string                 `json:"step_label,omitempty"`
	Touch         *TimelineTouch         `json:"touch,omitempty"`
}

// TimelinePage is one page of a (cadence, contact) timeline, newest first
type TimelinePage struct {
	Items    []TimelineItem `json:"items"`
	HasOlder bool           `json:"has_older"`
	Offset   int            `json:"offset"`
}

// Timeline reads the cadence history log
type Timeline struct {
	db *gorm.DB
}

func NewTimeline(db *gorm.DB) *Timeline {
	return &Timeline{db: db}
}

// EventLabel renders the display label of a history event
func EventLabel(eventType string, metadata map[string]interface{}) string {
	switch eventType {
	case models.EventAdded:
		return "Added to cadence"
	case models.EventCompleted:
		return "Step completed"
	case models.EventSkipped:
		return "Step skipped"
	case models.EventPostponed:
		if raw, ok := metadata["new_due_on"].(string); ok && raw != "" {
			if d, err := time.Parse(dateLayout, raw); err == nil {
				return "Step postponed to " + d.Format(labelDateLayout)
			}
			return "Step postponed to " + raw
		}
		return "Step postponed"
	case models.EventCadenceCompleted:
		return "Cadence completed"
	case models.EventContactRemoved:
		return "Contact removed from cadence"
	case models.EventEnded:
		return "Cadence ended"
	default:
		return "Activity"
	}
}

// GetTimeline returns history events for a contact within a cadence across
// all of its enrollments. has_older is offset+limit < total.
func (t *Timeline) GetTimeline(ctx context.Context, cadenceID, contactID uint, offset, limit int) (*TimelinePage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, domain.NewValidationError("limit must be greater than 0")
	}

	db := t.db.WithContext(ctx)
	scope := db.Model(&models.CadenceHistoryEvent{}).
		Where("cadence_id = ? AND contact_id = ?", cadenceID, contactID)

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	var events []models.CadenceHistoryEvent
	if err := db.Where("cadence_id = ? AND contact_id = ?", cadenceID, contactID).
		Order("event_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	touches, err := t.loadTouches(db, events)
	if err != nil {
		return nil, err
	}
	stepLabels, err := t.loadStepLabels(db, events)
	if err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, len(events))
	for _, ev := range events {
		meta := decodeMetadata(ev.Metadata)
		item := TimelineItem{
			ID:            ev.ID,
			EventType:     ev.EventType,
			Label:         EventLabel(ev.EventType, meta),
			EventAt:       ev.EventAt,
			Metadata:      meta,
			CadenceStepID: ev.CadenceStepID,
		}
		if ev.CadenceStepID != nil {
			item.StepLabel = stepLabels[*ev.CadenceStepID]
		}
		if ev.EventType == models.EventCompleted && ev.TouchID != nil {
			// the touch may have been deleted since
			if touch, ok := touches[*ev.TouchID]; ok {
				item.Touch = &TimelineTouch{
					ID:        touch.ID,
					TouchType: touch.TouchType,
					Subject:   touch.Subject,
					Body:      touch.Body,
					TouchedAt: touch.TouchedAt,
				}
			}
		}
		items = append(items, item)
	}

	return &TimelinePage{
		Items:    items,
		HasOlder: int64(offset+limit) < total,
		Offset:   offset,
	}, nil
}

func (t *Timeline) loadTouches(db *gorm.DB, events []models.CadenceHistoryEvent) (map[uint]models.Touch, error) {
	var ids []uint
	for _, ev := range events {
		if ev.EventType == models.EventCompleted && ev.TouchID != nil {
			ids = append(ids, *ev.TouchID)
		}
	}
	out := make(map[uint]models.Touch, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var touches []models.Touch
	if err := db.Where("id IN ?", ids).Find(&touches).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	for _, touch := range touches {
		out[touch.ID] = touch
	}
	return out, nil
}

func (t *Timeline) loadStepLabels(db *gorm.DB, events []models.CadenceHistoryEvent) (map[uint]string, error) {
	var ids []uint
	for _, ev := range events {
		if ev.CadenceStepID != nil {
			ids = append(ids, *ev.CadenceStepID)
		}
	}
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// deleted steps still label their history
	var steps []models.CadenceStep
	if err := db.Unscoped().Select("id", "label").Where("id IN ?", ids).Find(&steps).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}
	for _, s := range steps {
		out[s.ID] = s.Label
	}
	return out, nil
}
