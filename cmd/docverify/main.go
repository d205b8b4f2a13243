package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/orientation"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/processor"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/internal/docprocessing/service"
	"github.com/docverify/docverify-backend/internal/docprocessing/storage"
	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/messaging"
)

const cliName = "docverify"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "orient":
		err = runOrient(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "schema":
		err = runSchema(os.Args[2:])
	case "events":
		err = runEvents(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("DocVerify CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  docverify <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  orient    Ask the model which way a document photo is rotated")
	fmt.Println("  extract   Run the extraction pipeline against a local image")
	fmt.Println("  schema    Print the JSON Schema for a document type")
	fmt.Println("  events    Follow extraction events on RabbitMQ")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'docverify <command> -h' for more information on a command.")
}

func runOrient(args []string) error {
	fs := flag.NewFlagSet("orient", flag.ExitOnError)
	file := fs.String("file", "", "Path to the document image")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.Model.Timeout+10*time.Second)
	defer cancel()

	reading, err := app.service.DetectOrientation(ctx, data)
	if err != nil {
		return err
	}
	return printJSON(reading)
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	file := fs.String("file", "", "Path to the document image")
	docType := fs.String("type", "", "Document type: license or passport")
	rotation := fs.Float64("rotation", 0, "Clockwise rotation in degrees applied before extraction")
	crop := fs.String("crop", "", "Crop rectangle as x,y,width,height (after rotation)")
	autoOrient := fs.Bool("auto-orient", false, "Correct orientation with the model before extraction")
	concurrent := fs.Bool("concurrent", false, "Run structured and raw extraction concurrently")
	fs.Parse(args)

	if *file == "" || *docType == "" {
		return fmt.Errorf("usage: docverify extract -file PATH -type license|passport")
	}
	dt := domain.DocumentType(*docType)
	if !dt.Valid() {
		return fmt.Errorf("unknown document type %q", *docType)
	}

	edits := service.Edits{Rotation: *rotation, AutoOrient: *autoOrient}
	if *crop != "" {
		var x, y, w, h int
		if _, err := fmt.Sscanf(*crop, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
			return fmt.Errorf("invalid -crop %q: %w", *crop, err)
		}
		rect := image.Rect(x, y, x+w, y+h)
		edits.Crop = &rect
	}

	app, err := newApp(func(cfg *config.Config) {
		if *concurrent {
			cfg.Pipeline.ConcurrentExtraction = true
		}
	})
	if err != nil {
		return err
	}
	defer app.close()

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.log.Info().Str("file", *file).Str("document_type", *docType).Msg("starting extraction")

	result, err := app.service.Extract(ctx, data, dt, edits)
	if err != nil {
		// The partial audit trail shows which stage failed
		if result != nil {
			printJSON(result.AuditTrail)
		}
		return err
	}
	return printJSON(result)
}

func runSchema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	docType := fs.String("type", "", "Document type: license or passport")
	fs.Parse(args)

	sch, ok := schema.ByName(*docType)
	if !ok {
		return fmt.Errorf("unknown document type %q", *docType)
	}
	return printJSON(sch.JSONSchema())
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	queue := fs.String("queue", "docverify.cli.events", "Queue to bind to the document events exchange")
	pattern := fs.String("routing-key", "document.extraction.*", "Routing key pattern")
	fs.Parse(args)

	cfg, err := config.Load(cliName)
	if err != nil {
		return err
	}
	if cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("DOCVERIFY_RABBITMQ_URL must be set")
	}
	log := logger.New(cliName, cfg.Server.Environment)

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		return err
	}
	defer rmq.Close()

	consumer, err := messaging.NewConsumer(rmq, *queue, log)
	if err != nil {
		return err
	}
	if err := consumer.Subscribe(cfg.RabbitMQ.Exchange, *pattern); err != nil {
		return err
	}

	consumer.RegisterHandler(messaging.EventExtractionCompleted, func(_ context.Context, event *messaging.Event) error {
		var data messaging.ExtractionCompletedEvent
		if err := event.UnmarshalData(&data); err != nil {
			return err
		}
		log.Info().
			Str("job_id", data.JobID).
			Str("document_type", data.DocumentType).
			Strs("fields", data.FieldKeys).
			Bool("coerced", data.Coerced).
			Int("stages", data.Stages).
			Int64("duration_ms", data.DurationMs).
			Msg("extraction completed")
		return nil
	})
	consumer.RegisterHandler(messaging.EventExtractionFailed, func(_ context.Context, event *messaging.Event) error {
		var data messaging.ExtractionFailedEvent
		if err := event.UnmarshalData(&data); err != nil {
			return err
		}
		log.Warn().
			Str("job_id", data.JobID).
			Str("document_type", data.DocumentType).
			Str("stage", data.Stage).
			Str("error", data.Error).
			Int("stages", data.Stages).
			Msg("extraction failed")
		return nil
	})
	consumer.RegisterFallback(func(_ context.Context, event *messaging.Event) error {
		log.Debug().Str("type", event.Type).Str("source", event.Source).Msg("event ignored")
		return nil
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	log.Info().Str("queue", *queue).Msg("following extraction events, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

// app holds the wiring shared by the model-backed commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *storage.TempStorage
	service *service.Service
}

func newApp(overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.LoadWithValidation(cliName)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}

	// Logs go to stderr so stdout carries only JSON
	log := logger.NewWithWriter(os.Stderr, cliName)

	client, err := modelclient.New(&cfg.Model, log.WithComponent("modelclient"))
	if err != nil {
		return nil, err
	}

	codec := imagecodec.New(cfg.Pipeline.JPEGQuality).WithMaxPixels(cfg.Pipeline.MaxImagePixels)
	pipe := pipeline.New(client, codec, pipeline.SettingsFromConfig(&cfg.Model, &cfg.Pipeline), log.WithComponent("pipeline"))
	registry := processor.NewRegistry(
		processor.NewLicenseProcessor(pipe, log),
		processor.NewPassportProcessor(pipe, log),
	)
	advisor := orientation.NewAdvisor(client, codec, orientation.SettingsFromConfig(&cfg.Model, &cfg.Pipeline), log.WithComponent("orientation"))

	// Jobs are never started from the CLI, so the store needs no expiry
	store := storage.NewTempStorage(0)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		service: service.NewService(registry, store, advisor, codec, nil, cfg.Storage.TempDir, log),
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
