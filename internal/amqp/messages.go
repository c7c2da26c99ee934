package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReportRequest asks a worker to generate one report. It carries only ids;
// the worker loads the wizard state from the store.
type ReportRequest struct {
	ReportID  string    `json:"report_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingReportID = errors.New("missing report id")

func NewReportRequest(reportID, sessionID string) *ReportRequest {
	return &ReportRequest{
		ReportID:  reportID,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRequestFromJSON decodes a message and rejects one without a report id.
func ReportRequestFromJSON(data []byte) (*ReportRequest, error) {
	var msg ReportRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReportID == "" {
		return nil, errMissingReportID
	}
	return &msg, nil
}
