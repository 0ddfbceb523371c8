package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/cooktodor/notifier/pkg/errors"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// MessageBody is the data payload for acknowledgement-only responses.
type MessageBody struct {
	Message string `json:"message"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// Message writes a success response whose data is a single human readable message.
func Message(c *gin.Context, statusCode int, message string) {
	Success(c, statusCode, MessageBody{Message: message})
}

// Error writes a JSON error response derived from an AppError. Errors that
// are not AppErrors are reported as internal without exposing their text.
// Once a streaming response has started nothing more is written.
func Error(c *gin.Context, err error) {
	if c.Writer.Written() {
		return
	}
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// Abort writes the error response and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
