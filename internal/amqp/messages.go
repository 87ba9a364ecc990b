package amqp

import (
	"encoding/json"
	"time"
)

// MonthSyncMessage asks the sync worker to re-export one month's report.
// It carries only the month; the worker recomputes the report from the
// database, so stale messages are harmless.
type MonthSyncMessage struct {
	Month     string    `json:"month"`  // "YYYY-MM"
	Reason    string    `json:"reason"` // materialize | close | split | reopen | adhoc
	Timestamp time.Time `json:"timestamp"`
}

func NewMonthSyncMessage(month, reason string) *MonthSyncMessage {
	return &MonthSyncMessage{
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *MonthSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MonthSyncMessageFromJSON(data []byte) (*MonthSyncMessage, error) {
	var msg MonthSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
