package crm

import (
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/api/common"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// ErrorResponse is a type alias to the common error response
type ErrorResponse = common.ErrorResponse

// UploadResponse represents the response from the recording upload API
type UploadResponse struct {
	Success     bool   `json:"success"`
	RecordingID string `json:"recordingId,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RecordingMetadata is the JSON metadata part of a multipart recording upload.
// Timestamps use Unix milliseconds to match the server contract.
type RecordingMetadata struct {
	PhoneNumber   string `json:"phoneNumber"`
	ContactName   string `json:"contactName,omitempty"`
	Direction     string `json:"direction"`
	CallStartTime int64  `json:"callStartTime"`
	CallEndTime   int64  `json:"callEndTime"`
	DeviceID      string `json:"deviceId"`
	EmployeeID    string `json:"employeeId"`
	Matched       bool   `json:"matched"`
}

// UpdateCallRequest links an uploaded recording to an existing call record
type UpdateCallRequest struct {
	PhoneNumber  string `json:"phone_number"`
	RecordingURL string `json:"recording_url"`
	Duration     int    `json:"duration"`
}

// CallRecordRequest creates a new call-monitoring record. Used as a fallback
// when no existing record is found to link a recording against, and for
// pushing lifecycle updates as calls progress on the device.
type CallRecordRequest struct {
	PhoneNumber  string `json:"phone_number"`
	ContactName  string `json:"contact_name,omitempty"`
	Direction    string `json:"direction"`
	Status       string `json:"status"`
	Outcome      string `json:"outcome,omitempty"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time,omitempty"`
	Duration     int    `json:"duration"`
	EmployeeID   string `json:"employee_id"`
	DeviceID     string `json:"device_id"`
	RecordingURL string `json:"recordingUrl,omitempty"`
}

// CallRecordResponse represents the response from call record create/update APIs
type CallRecordResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewRecordingMetadata builds upload metadata from a call session snapshot
func NewRecordingMetadata(session models.CallSession, deviceID, employeeID string) RecordingMetadata {
	meta := RecordingMetadata{
		PhoneNumber: session.PhoneNumber,
		ContactName: session.ContactName,
		Direction:   string(session.Direction),
		DeviceID:    deviceID,
		EmployeeID:  employeeID,
		Matched:     session.Matched,
	}
	meta.CallStartTime = session.StartTime().UnixMilli()
	meta.CallEndTime = unixMilliOrZero(session.EndedAt)
	return meta
}

// NewCallRecordRequest builds a call-monitoring record from a session snapshot
func NewCallRecordRequest(session models.CallSession, deviceID, employeeID string) CallRecordRequest {
	req := CallRecordRequest{
		PhoneNumber: session.PhoneNumber,
		ContactName: session.ContactName,
		Direction:   string(session.Direction),
		Status:      string(session.State),
		Outcome:     string(session.Outcome),
		Duration:    session.TotalDuration,
		EmployeeID:  employeeID,
		DeviceID:    deviceID,
	}
	req.StartTime = session.StartTime().UnixMilli()
	req.EndTime = unixMilliOrZero(session.EndedAt)
	return req
}

// unixMilliOrZero is a small helper for optional timestamps
func unixMilliOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
