package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"imagine-rag-backend/content"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/storage"

	"github.com/gin-gonic/gin"
)

// ContentHandler handles uploads of CMS content snapshots
type ContentHandler struct {
	storage     storage.Storage
	loader      *content.Loader
	prefix      string
	maxFileSize int64
	allowedExts map[string]bool
	log         *logger.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(store storage.Storage, loader *content.Loader, prefix string, log *logger.Logger) *ContentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ContentHandler{
		storage:     store,
		loader:      loader,
		prefix:      prefix,
		maxFileSize: 10 * 1024 * 1024, // 10MB
		allowedExts: map[string]bool{
			".yaml": true,
			".yml":  true,
			".json": true,
		},
		log: log,
	}
}

// UploadSnapshot handles POST /rag/content
func (h *ContentHandler) UploadSnapshot(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}

	if fileHeader.Size > h.maxFileSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	ext := strings.ToLower(path.Ext(fileHeader.Filename))
	if !h.allowedExts[ext] {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"File type not allowed. Allowed types: YAML, JSON")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_READ_ERROR", err.Error())
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	// Reject documents the loader could not parse later
	snap, err := content.ParseSnapshot(data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SNAPSHOT", err.Error())
		return
	}

	key := storage.SnapshotKey(h.prefix, fileHeader.Filename)
	if err := h.storage.Put(c.Request.Context(), key, bytes.NewReader(data)); err != nil {
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED",
			fmt.Sprintf("Failed to store snapshot: %v", err))
		return
	}
	h.loader.Invalidate()

	h.log.Info("Content snapshot stored", "key", key, "bytes", len(data))
	c.JSON(http.StatusCreated, gin.H{
		"ok":  true,
		"key": key,
		"counts": gin.H{
			"courses":     len(snap.Courses),
			"chapters":    len(snap.Chapters),
			"subchapters": len(snap.Subchapters),
			"pages":       len(snap.Pages),
			"imagimodels": len(snap.Imagimodels),
			"reflections": len(snap.Reflections),
			"reviews":     len(snap.Reviews),
			"blog_posts":  len(snap.BlogPosts),
		},
	})
}

// ListSnapshots handles GET /rag/content
func (h *ContentHandler) ListSnapshots(c *gin.Context) {
	keys, err := h.storage.List(c.Request.Context(), h.prefix)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"snapshots": keys,
	})
}

// DeleteSnapshot handles DELETE /rag/content/:name
func (h *ContentHandler) DeleteSnapshot(c *gin.Context) {
	name := c.Param("name")
	if !h.allowedExts[strings.ToLower(path.Ext(name))] {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"File type not allowed. Allowed types: YAML, JSON")
		return
	}

	ctx := c.Request.Context()
	key := storage.SnapshotKey(h.prefix, name)
	obj, err := h.storage.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Snapshot not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	_ = obj.Close()

	if err := h.storage.Delete(ctx, key); err != nil {
		respondError(c, http.StatusInternalServerError, "DELETE_FAILED",
			fmt.Sprintf("Failed to delete snapshot: %v", err))
		return
	}
	h.loader.Invalidate()

	h.log.Info("Content snapshot deleted", "key", key)
	c.JSON(http.StatusOK, gin.H{
		"ok":  true,
		"key": key,
	})
}
