// Command conversion-backfill re-enqueues failed conversion uploads, for use
// after rotating upstream credentials or clearing a misconfiguration.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"clickbridge_backend/internal/conversion"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/db"
	"clickbridge_backend/platform/logger"
)

func main() {
	limit := flag.Int("limit", 100, "maximum number of failed uploads to requeue")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	queue, err := conversion.NewQueue(cfg)
	if err != nil {
		log.Error("failed to initialize upload queue", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = queue.Close()
	}()

	journal := conversion.NewRepository(pool)

	failed, err := journal.ListFailed(ctx, *limit)
	if err != nil {
		log.Error("failed to list failed uploads", "error", err)
		os.Exit(1)
	}
	if len(failed) == 0 {
		log.Info("no failed uploads to requeue")
		return
	}

	requeued := 0
	for _, upload := range failed {
		if err := journal.Requeue(ctx, upload.ID); err != nil {
			log.Error("failed to requeue upload", "upload_id", upload.ID, "error", err)
			continue
		}
		payload := conversion.UploadPayload{
			UploadID:       upload.ID.String(),
			LeadID:         upload.LeadID,
			ConversionType: upload.ConversionType,
		}
		if err := queue.EnqueueUpload(ctx, payload); err != nil {
			log.Error("failed to enqueue upload", "upload_id", upload.ID, "error", err)
			continue
		}
		log.ConversionEvent("requeued", upload.LeadID, upload.ConversionType)
		requeued++
	}

	log.Info("backfill complete", "requeued", requeued, "failed_total", len(failed))
}
