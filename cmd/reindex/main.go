package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"imagine-rag-backend/app"
	"imagine-rag-backend/config"
	"imagine-rag-backend/content"
	"imagine-rag-backend/logger"
	"imagine-rag-backend/models"
	"imagine-rag-backend/pipeline"
	"imagine-rag-backend/repository"
	"imagine-rag-backend/service"
	"imagine-rag-backend/storage"

	"github.com/spf13/cobra"
)

var (
	collectionsFlag []string
	dryRun          bool
)

var rootCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Export, embed and store course content chunks",
	Long: `Runs the content pipeline over the current content snapshots.
Every indexable collection is processed unless --collections narrows the run.
With --dry-run the chunks are shaped and counted but nothing is embedded or stored.`,
	SilenceUsage: true,
	RunE:         runReindex,
}

func init() {
	rootCmd.Flags().StringSliceVar(&collectionsFlag, "collections", nil, "collections to process (default: all indexable)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "shape and count chunks without embedding or storing them")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func parseCollections(values []string) []models.Collection {
	out := make([]models.Collection, 0, len(values))
	for _, v := range values {
		out = append(out, models.Collection(v))
	}
	return out
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	collections := parseCollections(collectionsFlag)
	if dryRun {
		return runDryRun(ctx, cmd, cfg, collections)
	}

	db, err := repository.NewPool(ctx, cfg.DatabaseURL, true)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	clients, err := app.WireClients(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer clients.Close()

	chunkRepo := repository.NewChunkRepository(db)
	jobRepo := repository.NewReindexJobRepository(db)
	index := service.NewIndexService(append(
		app.IndexOptions(cfg, clients, log),
		service.IndexWithChunkStore(chunkRepo),
		service.IndexWithJobStore(jobRepo),
	)...)

	started, err := index.StartReindex(ctx, service.StartReindexRequest{Collections: collections})
	if err != nil {
		return fmt.Errorf("failed to start reindex: %w", err)
	}
	cmd.Printf("Reindex job %s started\n", started.Job.ID)

	if err := index.ProcessReindex(ctx, started.Job); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	job, err := index.GetReindexJob(ctx, started.Job.ID)
	if err != nil {
		return err
	}
	for _, step := range job.Steps {
		cmd.Printf("  %-16s %-10s %5d entities %6d chunks %3d failures\n",
			step.Collection, step.Status, step.Entities, step.Chunks, step.Failures)
	}
	cmd.Printf("Indexed %d entities into %d chunks (%d failures)\n", job.Entities, job.Chunks, job.Failures)

	counts, err := chunkRepo.Count(ctx)
	if err != nil {
		return err
	}
	printCounts(cmd, "Stored chunks", counts)
	return nil
}

// runDryRun shapes every entity against the content snapshots and reports per-collection totals
func runDryRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, collections []models.Collection) error {
	if len(collections) == 0 {
		collections = service.IndexableCollections
	}
	for _, c := range collections {
		if !c.Valid() {
			return fmt.Errorf("unknown collection %q", c)
		}
	}

	store, err := storage.NewStorage(app.StorageConfig(cfg))
	if err != nil {
		return err
	}
	src, err := content.NewLoader(store, cfg.ContentPrefix).Load(ctx)
	if err != nil {
		return err
	}

	exporter := pipeline.NewExporter(src,
		pipeline.CanonCourse{UID: cfg.CanonCourseUID, Title: cfg.CanonCourseTitle},
		pipeline.ExporterWithUserHasher(pipeline.NewUserHasher(cfg.UserHashSalt)),
	)

	counts := make(map[models.Collection]int)
	entities := 0
	err = exporter.Export(ctx, collections, func(batch pipeline.EntityBatch) error {
		entities++
		counts[batch.Collection] += len(batch.Chunks)
		return nil
	})
	if err != nil {
		return err
	}

	cmd.Printf("Shaped %d entities (dry run, nothing stored)\n", entities)
	printCounts(cmd, "Chunks", counts)
	return nil
}

func printCounts(cmd *cobra.Command, title string, counts map[models.Collection]int) {
	keys := make([]string, 0, len(counts))
	for c := range counts {
		keys = append(keys, string(c))
	}
	sort.Strings(keys)

	cmd.Printf("%s:\n", title)
	for _, k := range keys {
		cmd.Printf("  %-16s %6d\n", k, counts[models.Collection(k)])
	}
}
