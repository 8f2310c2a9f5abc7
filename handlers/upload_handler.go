package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"lawassist-backend/service"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 5 * 1024 * 1024

// UploadHandler handles case document uploads.
type UploadHandler struct {
	caseService *service.CaseService
}

func NewUploadHandler(caseService *service.CaseService) *UploadHandler {
	return &UploadHandler{caseService: caseService}
}

// Upload handles POST /api/upload_case
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "MISSING_FILE", "file is required")
		return
	}

	sessionID := resolveSession(c, c.PostForm("session_id"))
	if sessionID == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_SESSION", "session_id is required")
		return
	}

	if fileHeader.Size > maxUploadBytes {
		errorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds %dMB. Please reupload a smaller file.", maxUploadBytes/(1024*1024)))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "READ_FAILED", err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "READ_FAILED", err.Error())
		return
	}
	if len(content) > maxUploadBytes {
		errorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds %dMB. Please reupload a smaller file.", maxUploadBytes/(1024*1024)))
		return
	}

	result, err := h.caseService.UploadCase(c.Request.Context(), service.UploadCaseRequest{
		ExternalUserID: sessionID,
		Filename:       fileHeader.Filename,
		Text:           sanitizeText(content),
	})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case_id":  result.CaseID,
			"message":  result.Message,
			"existing": result.Existing,
		},
	})
}

// sanitizeText decodes upload bytes as UTF-8, dropping invalid sequences.
func sanitizeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "")
}
