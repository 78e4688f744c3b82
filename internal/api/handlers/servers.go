package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backstead/backstead/internal/api/middleware"
	"github.com/backstead/backstead/internal/crypto"
	"github.com/backstead/backstead/internal/models"
	"github.com/backstead/backstead/internal/remote"
	"github.com/backstead/backstead/internal/store"
)

// ServerHandler manages registered remote servers. Credentials are
// encrypted before they touch the database and never leave it again.
type ServerHandler struct {
	servers *store.ServerStore
	creds   *crypto.Manager
	dialer  remote.Dialer
}

func NewServerHandler(servers *store.ServerStore, creds *crypto.Manager, dialer remote.Dialer) *ServerHandler {
	return &ServerHandler{
		servers: servers,
		creds:   creds,
		dialer:  dialer,
	}
}

type serverRequest struct {
	Name       string `json:"name" binding:"required,min=1,max=128"`
	Host       string `json:"host" binding:"required"`
	Port       int    `json:"port"`
	Username   string `json:"username" binding:"required"`
	AuthMethod string `json:"auth_method" binding:"required,oneof=password key"`
	Credential string `json:"credential"`
}

// ListServers returns every registered server.
// GET /api/v1/servers
func (h *ServerHandler) ListServers(c *gin.Context) {
	servers, err := h.servers.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list servers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

// GetServer returns one server.
// GET /api/v1/servers/:id
func (h *ServerHandler) GetServer(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	c.JSON(http.StatusOK, server)
}

// CreateServer registers a server. The plaintext credential exists only
// for the duration of this request.
// POST /api/v1/servers
func (h *ServerHandler) CreateServer(c *gin.Context) {
	var req serverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Credential == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Credential is required"})
		return
	}

	encrypted, err := h.creds.Encrypt(req.Credential)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credential"})
		return
	}

	server := &models.Server{
		Name:                req.Name,
		Host:                req.Host,
		Port:                req.Port,
		Username:            req.Username,
		AuthMethod:          models.AuthMethod(req.AuthMethod),
		EncryptedCredential: encrypted,
		OwnerID:             middleware.UserID(c),
	}
	if err := h.servers.Create(server); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create server"})
		return
	}

	c.JSON(http.StatusCreated, server)
}

// UpdateServer updates a server. An empty credential keeps the stored one.
// PUT /api/v1/servers/:id
func (h *ServerHandler) UpdateServer(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	var req serverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	server.Name = req.Name
	server.Host = req.Host
	server.Port = req.Port
	server.Username = req.Username
	server.AuthMethod = models.AuthMethod(req.AuthMethod)
	server.EncryptedCredential = nil
	if req.Credential != "" {
		encrypted, err := h.creds.Encrypt(req.Credential)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credential"})
			return
		}
		server.EncryptedCredential = encrypted
	}

	if err := h.servers.Update(server); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update server"})
		return
	}
	c.JSON(http.StatusOK, server)
}

// DeleteServer removes a server and its credential.
// DELETE /api/v1/servers/:id
func (h *ServerHandler) DeleteServer(c *gin.Context) {
	if err := h.servers.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted"})
}

// TestConnection dials the server once and reports the result. The health
// row is updated either way.
// POST /api/v1/servers/:id/test-connection
func (h *ServerHandler) TestConnection(c *gin.Context) {
	server, err := h.servers.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	session, err := h.dialer.Dial(c.Request.Context(), server)
	checkedAt := time.Now()
	if err != nil {
		h.servers.SetHealth(server.ID, false, checkedAt)
		c.JSON(http.StatusOK, gin.H{"connected": false, "error": err.Error()})
		return
	}
	session.Close()

	h.servers.SetHealth(server.ID, true, checkedAt)
	c.JSON(http.StatusOK, gin.H{"connected": true})
}
