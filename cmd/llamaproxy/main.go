// Command llamaproxy starts the reverse proxy: it loads configuration,
// wires the fix registry, upstream client, metrics and their exporters,
// then serves the orchestrated HTTP surface.
//
// Grounded on the teacher's root main.go: same startup log shape, same
// http.Server timeout values (long write timeout to cover streaming
// responses), same single-process model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llamaproxy/internal/config"
	"llamaproxy/internal/fixes"
	"llamaproxy/internal/logging"
	"llamaproxy/internal/metrics"
	"llamaproxy/internal/orchestrator"
	"llamaproxy/internal/upstream"
	"llamaproxy/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	fmt.Println(version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	applog := logging.New()
	applog.Info("configuration loaded: listening on %s:%d, backend %s", cfg.Server.Host, cfg.Server.Port, cfg.BaseURL())

	registry := buildRegistry(cfg)
	upstreamCfg := upstream.DefaultConfig(cfg.BaseURL())
	upstreamCfg.RequestTimeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	client := upstream.NewClient(upstreamCfg)
	m := metrics.New()

	queue := metrics.NewQueue(applog.WithComponent(logging.ComponentOrchestrator), 256, m.ExporterDropped)
	if lokiCfg, ok := cfg.Exporters["loki"]; ok && lokiCfg.Enabled {
		baseURL, _ := lokiCfg.Params["url"].(string)
		if baseURL == "" {
			baseURL = "http://localhost:3100"
		}
		queue.Register(metrics.NewLokiExporter(baseURL, applog))
		applog.Info("loki exporter enabled at %s", baseURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	defer queue.Stop()

	handler := orchestrator.NewHandler(cfg, client, registry, m, queue, applog)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // streaming responses can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			applog.Warn("graceful shutdown failed: %v", err)
		}
	}()

	applog.Info("llamaproxy listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		applog.Error("server failed: %v", err)
		os.Exit(1)
	}
}

// buildRegistry registers every fix in priority order, honoring both the
// global and per-module enable flags, and passes through each module's
// free-form options (currently only dedup_tool_arguments.remove_duplicate).
func buildRegistry(cfg *config.Config) *fixes.Registry {
	r := fixes.NewRegistry()

	r.Register(&fixes.NullToolIndex{})
	r.Register(&fixes.ArgumentKeyRecovery{})

	removeDuplicate := true
	if mod, ok := cfg.Fixes.Modules["dedup_tool_arguments"]; ok {
		if v, ok := mod.Options["remove_duplicate"].(bool); ok {
			removeDuplicate = v
		}
	}
	r.Register(&fixes.DedupToolArguments{RemoveDuplicate: removeDuplicate})

	if !cfg.Fixes.Enabled {
		for _, f := range r.List() {
			r.SetEnabled(f.Name(), false)
		}
		return r
	}

	for name, mod := range cfg.Fixes.Modules {
		r.SetEnabled(name, mod.Enabled)
	}
	return r
}
