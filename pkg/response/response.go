package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the wire shape of every error response: a stable
// machine-readable code plus an optional human-readable message.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// BadRequest sends 400 with an error code and message.
func BadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorBody{Error: code, Message: message})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, ErrorBody{Error: code, Message: message})
}

// NotFound sends 404.
func NotFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, ErrorBody{Error: code, Message: message})
}

// Conflict sends 409.
func Conflict(c *gin.Context, code, message string) {
	c.JSON(http.StatusConflict, ErrorBody{Error: code, Message: message})
}

// Internal sends 500 with a generic body; details stay in the server log.
func Internal(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, ErrorBody{Error: "internal_error", Message: "Internal server error"})
}
