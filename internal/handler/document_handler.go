package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/service/document"
)

type DocumentHandler struct {
	svc    *document.Service
	logger *zap.Logger
}

func NewDocumentHandler(svc *document.Service, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, logger: logger}
}

// ListDocuments returns the reconciled set: derived progress images plus
// uploaded documents.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	docs, err := h.svc.List(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	in := document.UploadInput{
		Name:                c.PostForm("name"),
		Category:            c.PostForm("category"),
		URL:                 c.PostForm("url"),
		MilestoneRef:        c.PostForm("milestone_ref"),
		UploadedBy:          c.GetString("actor"),
		SharedWithHomeowner: c.PostForm("shared_with_homeowner") != "false",
	}

	if in.URL == "" {
		file, header, err := c.Request.FormFile("file")
		if err == nil {
			defer file.Close()
			in.Data, err = io.ReadAll(file)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
				return
			}
			in.ContentType = header.Header.Get("Content-Type")
			if in.Name == "" {
				in.Name = header.Filename
			}
		}
	}

	d, err := h.svc.Upload(c.Request.Context(), projectID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": d})
}

func (h *DocumentHandler) MarkViewed(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	if err := h.svc.MarkViewed(c.Request.Context(), documentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
