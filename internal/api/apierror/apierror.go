// Package apierror defines the error taxonomy exposed by the HTTP API and helpers
// for writing the standard error envelope: {success:false, error:{code, message}}.
package apierror

import "github.com/gin-gonic/gin"

// Error codes returned in the error envelope.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodePermissionDenied  = "INSUFFICIENT_PERMISSIONS"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeRevertFailed      = "AUDIT_REVERT_FAILED"
	CodeExportFailed      = "AUDIT_EXPORT_FAILED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
)

// Body is the JSON error envelope.
type Body struct {
	Success bool   `json:"success"`
	Error   Detail `json:"error"`
}

// Detail carries the machine-readable code and a human-readable message.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Respond writes the error envelope with the given HTTP status.
func Respond(c *gin.Context, status int, code, message string) {
	c.JSON(status, Body{Error: Detail{Code: code, Message: message}})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Body{Error: Detail{Code: code, Message: message}})
}

// OK wraps a success payload in the standard envelope.
func OK(data interface{}) gin.H {
	return gin.H{"success": true, "data": data}
}
