package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"querypilot/internal/apis/dtos"
	"querypilot/pkg/dbmanager"
)

type QueryHandler struct {
	manager  *dbmanager.Manager
	executor *dbmanager.Executor
}

func NewQueryHandler(manager *dbmanager.Manager, executor *dbmanager.Executor) *QueryHandler {
	return &QueryHandler{manager: manager, executor: executor}
}

// Execute runs one statement in a session's connection. Validation failures
// come back as a structured QueryError, not an HTTP error: the request was
// well-formed, the statement was not.
func (h *QueryHandler) Execute(c *gin.Context) {
	token := c.Param("token")

	var req dtos.ExecuteQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	connectionID, ok := h.manager.ValidateSession(token, true)
	if !ok {
		errorMsg := "session not found"
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	result := h.executor.Run(c.Request.Context(), connectionID, req.SQL, req.Trusted)

	response := dtos.ExecuteQueryResponse{ExecutionResult: result}
	if !result.Success {
		response.Error = &dtos.QueryError{
			Code:    result.ErrorKind,
			Message: result.Error,
		}
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: result.Success,
		Data:    response,
	})
}
