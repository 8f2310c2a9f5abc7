package handlers

import (
	"errors"
	"net/http"

	"lawassist-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QAHandler handles the question, clarification, reset, and history routes.
type QAHandler struct {
	qaService   *service.QAService
	caseService *service.CaseService
}

func NewQAHandler(qaService *service.QAService, caseService *service.CaseService) *QAHandler {
	return &QAHandler{
		qaService:   qaService,
		caseService: caseService,
	}
}

// AskRequest represents the request body for asking a question.
type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	CaseID    string `json:"case_id"`
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
}

// resolveSession picks the caller identity: the X-Session-ID header wins,
// then the body's session_id.
func resolveSession(c *gin.Context, bodySessionID string) string {
	if header := c.GetHeader("X-Session-ID"); header != "" {
		return header
	}
	return bodySessionID
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// Ask handles POST /api/ask
func (h *QAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if req.CaseID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_CASE_ID", "case_id is required")
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return
	}

	sessionID := resolveSession(c, req.SessionID)
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_SESSION", "session_id is required")
		return
	}

	result, err := h.qaService.Ask(c.Request.Context(), service.AskRequest{
		ExternalUserID: sessionID,
		CaseID:         caseID,
		Question:       req.Question,
		Topic:          req.Topic,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			errorResponse(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrCaseNotFound):
			errorResponse(c, http.StatusNotFound, "CASE_NOT_FOUND", "Case not found")
		default:
			errorResponse(c, http.StatusInternalServerError, "ASK_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ClarifyRequest represents the request body for answering a
// clarification round.
type ClarifyRequest struct {
	Answers       map[string]string `json:"answers" binding:"required"`
	MissingFields []string          `json:"missing_fields"`
	Filename      string            `json:"filename"`
	CaseID        string            `json:"case_id"`
	SessionID     string            `json:"session_id"`
}

// Clarify handles POST /api/clarify
func (h *QAHandler) Clarify(c *gin.Context) {
	var req ClarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if req.CaseID == "" && req.Filename == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_CASE_ID", "case_id is required")
		return
	}
	var caseID uuid.UUID
	if req.CaseID != "" {
		var err error
		caseID, err = uuid.Parse(req.CaseID)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
			return
		}
	}

	sessionID := resolveSession(c, req.SessionID)
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_SESSION", "session_id is required")
		return
	}

	result, err := h.qaService.SubmitClarification(c.Request.Context(), service.ClarifyRequest{
		ExternalUserID: sessionID,
		CaseID:         caseID,
		Filename:       req.Filename,
		Answers:        req.Answers,
		MissingFields:  req.MissingFields,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			errorResponse(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrCaseNotFound):
			errorResponse(c, http.StatusNotFound, "CASE_NOT_FOUND", "Case not found")
		case errors.Is(err, service.ErrNoPendingClarification):
			errorResponse(c, http.StatusBadRequest, "NO_PENDING_CLARIFICATION", "No pending clarification")
		default:
			errorResponse(c, http.StatusInternalServerError, "CLARIFY_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ResetRequest represents the request body for clearing case state.
type ResetRequest struct {
	CaseID    string `json:"case_id" binding:"required"`
	SessionID string `json:"session_id"`
}

// Reset handles POST /api/reset
func (h *QAHandler) Reset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return
	}

	sessionID := resolveSession(c, req.SessionID)
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_SESSION", "session_id is required")
		return
	}

	if err := h.caseService.ResetCase(c.Request.Context(), sessionID, caseID); err != nil {
		errorResponse(c, http.StatusInternalServerError, "RESET_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// History handles GET /api/history/:session_id
func (h *QAHandler) History(c *gin.Context) {
	sessionID := resolveSession(c, c.Param("session_id"))
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_SESSION", "session_id is required")
		return
	}

	cases, err := h.caseService.History(c.Request.Context(), sessionID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "HISTORY_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"cases": cases,
		},
	})
}
