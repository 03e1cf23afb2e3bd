package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-viewer/config"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
	"github.com/feichai0017/document-viewer/pkg/worker"
)

func main() {
	appCfg := config.GetAppConfig()
	redisCfg := config.GetRedisConfig()

	outputs := []string{"stdout"}
	if appCfg.LogFile != "" {
		outputs = append(outputs, appCfg.LogFile)
	}
	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding(appCfg.LogEncoding),
		logger.WithOutputPaths(outputs),
		logger.WithInitialFields(map[string]interface{}{"component": "worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	docService, err := document.GetService(log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer docService.Stop()

	workerCfg := &worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   appCfg.WorkerConcurrency,
		Queues:        worker.DefaultQueues(),
	}
	exportWorker := worker.NewExportWorker(workerCfg, docService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := exportWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	exportWorker.Stop()
	log.Info("Worker stopped")
}
