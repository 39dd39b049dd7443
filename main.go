package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sightline/server/internal/engine"
	"sightline/server/internal/hub"
	"sightline/server/internal/producer"
	"sightline/server/logging"
	"sightline/server/logging/sinks"
)

func main() {
	var (
		configPath string
		listenAddr string
		demo       bool
	)
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&listenAddr, "addr", "", "listen address override")
	flag.BoolVar(&demo, "demo", false, "feed the engine from a synthetic orbit producer")
	flag.Parse()

	cfg, err := loadAppConfig(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	router, closeSinks, err := buildLogRouter(cfg)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	counters := newTelemetryCounters()
	broadcast := hub.New(cfg.SubscriberBuffer, router, counters)
	eng, err := engine.New(engine.NewRegistry(), broadcast, router, counters, cfg.engineConfig())
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if demo {
		go func() {
			source := &producer.Synthetic{Entities: 6, Interval: 200 * time.Millisecond}
			if err := source.Start(ctx, eng); err != nil && ctx.Err() == nil {
				log.Printf("demo producer stopped: %v", err)
			}
		}()
	}

	api := newAPIServer(eng, broadcast, counters, log.Default())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: api.routes()}

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("server failed: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	eng.Stop()
	if err := router.Close(shutdownCtx); err != nil {
		log.Printf("log router close: %v", err)
	}
	closeSinks()
}

// buildLogRouter assembles the event router from the configured sinks.
func buildLogRouter(cfg appConfig) (*logging.Router, func(), error) {
	routerCfg := cfg.loggingRouterConfig()

	var named []logging.NamedSink
	var files []*os.File
	if routerCfg.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: sinks.NewConsole(os.Stdout, routerCfg.Console),
		})
	}
	if routerCfg.HasSink("json") && routerCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(routerCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, file)
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: sinks.NewJSONLines(file, routerCfg.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(nil, routerCfg, named)
	if err != nil {
		for _, file := range files {
			file.Close()
		}
		return nil, nil, err
	}
	closeFiles := func() {
		for _, file := range files {
			file.Close()
		}
	}
	return router, closeFiles, nil
}
