package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/config"
	"github.com/fairdinkum/course-backend/pkg/response"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Handler authenticates the single env-configured admin identity. There is
// no user table in this system; approval and reporting routes are the only
// authenticated surface.
type Handler struct {
	admin  config.Admin
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(admin config.Admin, jwtService *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{admin: admin, jwt: jwtService, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid_request", "email and password are required")
		return
	}
	if h.admin.Email == "" || h.admin.PasswordHash == "" ||
		req.Email != h.admin.Email || !CheckPassword(req.Password, h.admin.PasswordHash) {
		h.logger.Warn("admin login rejected", zap.String("email", req.Email))
		response.Unauthorized(c, "invalid_credentials", "invalid email or password")
		return
	}
	token, err := h.jwt.Generate(req.Email)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c)
		return
	}
	response.OK(c, gin.H{"token": token})
}
