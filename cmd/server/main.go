package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/skalene/yolo-inference/internal/config"
	"github.com/skalene/yolo-inference/internal/server"
	"github.com/skalene/yolo-inference/internal/service"
	"github.com/skalene/yolo-inference/internal/yolo"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the service config file")
	flag.Parse()

	logger := newLogger(os.Getenv("DEBUG") == "true")
	defer logger.Sync() //nolint:errcheck

	// run owns the deferred teardown; Fatalw here would skip it.
	if err := run(*configPath, logger); err != nil {
		logger.Errorw("server exited", "error", err)
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(configPath string, logger *zap.SugaredLogger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if err := yolo.InitRuntime(cfg.ORTLibraryPath); err != nil {
		return err
	}
	defer yolo.CloseRuntime() //nolint:errcheck

	svc := service.New(cfg, logger)
	if err := svc.Load(); err != nil {
		return errors.Wrap(err, "load models")
	}
	defer svc.Close()

	srv := &http.Server{
		Handler:      server.New(svc, logger).Router(),
		Addr:         cfg.Addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	logger.Infow("starting server", "addr", cfg.Addr)
	return srv.ListenAndServe()
}

func newLogger(debug bool) *zap.SugaredLogger {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar()
}
