package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the RAG endpoints on r. Reindexing and content
// uploads sit behind the admin gate.
func RegisterRoutes(r *gin.Engine, rag *RAGHandler, contentHandler *ContentHandler, adminKeyHash string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/rag")
	{
		api.POST("/query", rag.Query)
		api.POST("/feedback", rag.Feedback)

		admin := api.Group("", AdminGate(adminKeyHash))
		admin.POST("/reindex", rag.Reindex)
		admin.GET("/reindex/:id", rag.ReindexStatus)
		if contentHandler != nil {
			admin.POST("/content", contentHandler.UploadSnapshot)
			admin.GET("/content", contentHandler.ListSnapshots)
			admin.DELETE("/content/:name", contentHandler.DeleteSnapshot)
		}
	}
}
