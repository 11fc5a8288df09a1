package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"querypilot/internal/apis/dtos"
	"querypilot/pkg/dbmanager"
)

type SessionHandler struct {
	manager *dbmanager.Manager
}

func NewSessionHandler(manager *dbmanager.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

func descriptorFromRequest(req *dtos.CreateSessionRequest) dbmanager.ConnectionDescriptor {
	return dbmanager.ConnectionDescriptor{
		ID:         req.ConnectionID,
		EngineKind: req.EngineKind,
		Config: dbmanager.ConnectionConfig{
			FilePath: req.Config.FilePath,
			Host:     req.Config.Host,
			Port:     req.Config.Port,
			Username: req.Config.Username,
			Password: req.Config.Password,
			Database: req.Config.Database,
			UseSSL:   req.Config.UseSSL,
			SSLMode:  req.Config.SSLMode,
		},
	}
}

// Create opens a session over a connection descriptor and returns the token
// that stands in for the credentials from here on.
func (h *SessionHandler) Create(c *gin.Context) {
	var req dtos.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	result, err := h.manager.Connect(c.Request.Context(), descriptorFromRequest(&req))
	if err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data: dtos.CreateSessionResponse{
			SessionToken:   result.SessionToken,
			ReadOnlyStatus: result.ReadOnlyStatus,
		},
	})
}

// Test checks reachability of a descriptor without creating a session.
func (h *SessionHandler) Test(c *gin.Context) {
	var req dtos.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	if err := h.manager.TestConnection(c.Request.Context(), descriptorFromRequest(&req)); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    "Connection is reachable",
	})
}

// Status validates a session token. touch=true extends the idle clock; the
// default is a passive check that never keeps a dying session alive.
func (h *SessionHandler) Status(c *gin.Context) {
	token := c.Param("token")
	touch := c.DefaultQuery("touch", "false") == "true"

	connectionID, ok := h.manager.ValidateSession(token, touch)
	if !ok {
		errorMsg := "session not found"
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	info, _ := h.manager.SessionStatus(token)
	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data: dtos.SessionStatusResponse{
			ConnectionID: connectionID,
			Active:       info["active"] == true,
		},
	})
}

// Delete disconnects a session: the session, its chats and its pool.
func (h *SessionHandler) Delete(c *gin.Context) {
	token := c.Param("token")

	if err := h.manager.Disconnect(token); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    "Session closed",
	})
}

// Schema returns the connection schema behind a session, cached unless
// refresh is requested or a namespace filter is given.
func (h *SessionHandler) Schema(c *gin.Context) {
	token := c.Param("token")

	var namespaces []string
	if raw, exists := c.GetQueryArray("namespaces"); exists {
		namespaces = raw
	}

	var schema *dbmanager.SchemaInfo
	var err error
	if c.DefaultQuery("refresh", "false") == "true" {
		schema, err = h.manager.RefreshSchema(c.Request.Context(), token)
	} else {
		schema, err = h.manager.GetSchema(c.Request.Context(), token, namespaces)
	}
	if err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    schema,
	})
}
