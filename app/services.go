package app

import (
	"imagine-rag-backend/config"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/pipeline"
	"imagine-rag-backend/service"
)

// IndexOptions returns the index service options derived from configuration.
// Callers add the chunk and job stores they run against.
func IndexOptions(cfg *config.Config, clients *Clients, log *logger.Logger) []service.IndexServiceOption {
	return []service.IndexServiceOption{
		service.IndexWithLoader(clients.Loader),
		service.IndexWithEmbedder(clients.Embedder),
		service.IndexWithCanonCourse(pipeline.CanonCourse{
			UID:   cfg.CanonCourseUID,
			Title: cfg.CanonCourseTitle,
		}),
		service.IndexWithUserHasher(pipeline.NewUserHasher(cfg.UserHashSalt)),
		service.IndexWithWorkers(cfg.ReindexWorkers),
		service.IndexWithLogger(log.With("component", "index")),
	}
}
