package common

// ErrorResponse represents a standard error response returned by the agent API
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`    // HTTP-like error code
	Details map[string]interface{} `json:"details,omitempty"` // Additional error context
}

// SuccessResponse represents a standard success response returned by the agent API
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
