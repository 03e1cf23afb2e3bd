package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
	"github.com/feichai0017/document-viewer/pkg/queue"
)

// ExportHandler runs queued exports.
type ExportHandler interface {
	HandleExport(ctx context.Context, task *queue.Task) error
	CleanupExports(ctx context.Context) error
}

type ExportWorker struct {
	BaseWorker
	handler         ExportHandler
	cleanupInterval time.Duration
}

func NewExportWorker(cfg *Config, handler ExportHandler, log logger.Logger) *ExportWorker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * 10 * time.Second
			},
		},
	)

	w := &ExportWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler:         handler,
		cleanupInterval: time.Hour,
	}
	w.registerHandlers()
	return w
}

func (w *ExportWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeExportRaster, w.handleExport)
	w.mux.HandleFunc(queue.TaskTypeExportReport, w.handleExport)
}

func (w *ExportWorker) handleExport(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || task.DocumentID() == "" {
		w.logger.Error("Invalid export task", logger.TaskID(task.ID), logger.Any("metadata", task.Metadata))
		return fmt.Errorf("invalid task data: missing task or document id: %w", asynq.SkipRetry)
	}
	if task.Type == "" {
		task.Type = t.Type()
	}

	w.writeResult(t, map[string]interface{}{"status": "running", "progress": 0})

	err := w.handler.HandleExport(ctx, &task)
	if err != nil {
		w.writeResult(t, map[string]interface{}{"status": "failed", "error": err.Error()})
		var exportErr *models.ExportError
		if errors.As(err, &exportErr) || errors.Is(err, models.ErrNotReady) || errors.Is(err, models.ErrNotFound) {
			// retrying cannot change the outcome
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.writeResult(t, map[string]interface{}{"status": "completed", "progress": 1})
	return nil
}

func (w *ExportWorker) writeResult(t *asynq.Task, v map[string]interface{}) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, _ := json.Marshal(v)
	if _, err := rw.Write(data); err != nil {
		w.logger.Warn("Failed to write task result", logger.String("taskId", rw.TaskID()), logger.Error(err))
	}
}

func (w *ExportWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go w.cleanupLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}

// cleanupLoop removes expired export artifacts until the worker stops.
func (w *ExportWorker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := w.handler.CleanupExports(ctx); err != nil {
				w.logger.Warn("Export cleanup failed", logger.Error(err))
			}
		}
	}
}
