package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/auth"
	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/store"
)

// AuthHandler handles login and first-run setup.
type AuthHandler struct {
	users      *store.UserStore
	jwtManager *auth.JWTManager
	bcryptCost int
}

func NewAuthHandler(users *store.UserStore, jwtManager *auth.JWTManager, bcryptCost int) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtManager: jwtManager,
		bcryptCost: bcryptCost,
	}
}

// SetupStatus reports whether the first account still needs to be created.
// GET /api/v1/auth/setup-status
func (h *AuthHandler) SetupStatus(c *gin.Context) {
	count, err := h.users.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"needs_setup": count == 0})
}

// Setup creates the initial account. Only works while no account exists;
// afterwards the endpoint is permanently closed.
// POST /api/v1/auth/setup
func (h *AuthHandler) Setup(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3,max=64"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=12"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.users.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Setup already completed"})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := h.users.Create(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	logging.L().Info("initial_account_created", "user_id", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, user)
}

// Login exchanges credentials for an access token. Authentication failures
// are deliberately indistinguishable between a missing user and a wrong
// password.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByUsername(req.Username)
	if err != nil || !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		logging.L().Warn("login_failed", "username", req.Username, "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Me returns the authenticated account.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims := c.MustGet("user").(*auth.Claims)
	user, err := h.users.Get(claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
