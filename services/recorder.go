package services

import (
	"encoding/json"

	"cadencecrm/models"

	"gorm.io/gorm"
)

// EventRecorder appends history events inside the caller's transaction
type EventRecorder interface {
	Record(tx *gorm.DB, event *models.CadenceHistoryEvent) error
}

// GormRecorder inserts events into cadence_history_events
type GormRecorder struct{}

func (GormRecorder) Record(tx *gorm.DB, event *models.CadenceHistoryEvent) error {
	return tx.Create(event).Error
}

// encodeMetadata marshals a metadata map, storing "{}" for nil
func encodeMetadata(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeMetadata never fails; unreadable blobs come back as an empty map
func decodeMetadata(s string) map[string]interface{} {
	out := map[string]interface{}{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
