// Package response writes API error bodies.
package response

import (
	"errors"
	"net/http"

	"chat-sync/internal/apperr"
	"chat-sync/internal/models"

	"github.com/gin-gonic/gin"
)

// Error maps err to its status code and writes a models.ErrorResponse.
// Unclassified errors are reported as 500 without their text.
func Error(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)
	body := models.ErrorResponse{Code: code, Message: http.StatusText(code)}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message
		body.Status = ae.CurrentStatus
		if ae.Cause != nil {
			body.Details = ae.Cause.Error()
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

// Abort writes a plain error with code.
func Abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, models.ErrorResponse{Code: code, Message: message})
}

// BadRequest is a shorthand for malformed request bodies.
func BadRequest(c *gin.Context, err error) {
	Abort(c, http.StatusBadRequest, "invalid request body: "+err.Error())
}
