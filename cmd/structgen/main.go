// Command structgen runs the generation pipeline offline against a replay
// script, for schema development and operational smoke checks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/halcyonlabs/structgen/internal/adapters/provider/replay"
	"github.com/halcyonlabs/structgen/internal/telemetry"
	"github.com/halcyonlabs/structgen/pkg/structgen"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		scriptPath = flag.String("script", "", "path to replay script (required)")
		schemaPath = flag.String("schema", "", "path to target JSON Schema file (required)")
		schemaName = flag.String("schema-name", "artifact", "schema descriptor name")
		task       = flag.String("task", "", "task description (required)")
		researchID = flag.String("research", "local", "research session id")
		stageID    = flag.String("stage", "stage-1", "stage id")
		stageName  = flag.String("stage-name", "draft_section", "stage name / task category")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *scriptPath == "" || *schemaPath == "" || *task == "" {
		flag.Usage()
		os.Exit(2)
	}

	shutdown, err := telemetry.Init("structgen", logger)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
		}
	}()

	cfg, err := structgen.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	adapter, err := replay.Load(*scriptPath)
	if err != nil {
		log.Fatalf("Failed to load replay script: %v", err)
	}

	schemaJSON, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("Failed to read schema: %v", err)
	}

	eng, err := structgen.New(cfg, adapter, structgen.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("failed to close engine", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	outcome := eng.Generate(ctx, *task,
		structgen.SchemaDescriptor{Name: *schemaName, Schema: schemaJSON},
		structgen.StageContext{ResearchID: *researchID, StageID: *stageID, StageName: *stageName},
		structgen.Options{},
	)

	out, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal outcome: %v", err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))

	if !outcome.Success {
		os.Exit(1)
	}
}
