// Package pipeline runs the four-stage extraction protocol shared by every
// document type: encode the image once, extract structured fields, transcribe
// the raw text, then cross-validate both with a stronger text model.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/reconcile"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/logger"
)

// Provenance source names
const (
	SourceCrossValidation = "cross_validation"
	SourceStructured      = "structured_extraction"
	SourceRawText         = "raw_text"
)

// Template binds a document type to the pipeline. It carries everything that
// differs between document types; the protocol itself does not.
type Template struct {
	DocumentType string
	Schema       *schema.Schema
	// StructuredPrompt already embeds the schema
	StructuredPrompt string
	RawPrompt        string
	// ValidationPrompt builds the cross-validation prompt from the indented
	// structured JSON and the raw transcription
	ValidationPrompt func(structuredJSON, rawText string) string
	// SchemaInResponseFormat also sends the JSON Schema as response_format.schema
	SchemaInResponseFormat bool
}

// Settings are the model identifiers and sampling parameters of one pipeline.
type Settings struct {
	VisionModel           string
	ValidationModel       string
	MaxTokens             int
	StructuredTemperature float64
	RawTemperature        float64
	ValidationTemperature float64
	// ConcurrentExtraction issues stages 2 and 3 together and joins before stage 4
	ConcurrentExtraction bool
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(m *config.ModelConfig, p *config.PipelineConfig) Settings {
	return Settings{
		VisionModel:           m.VisionModel,
		ValidationModel:       m.ValidationModel,
		MaxTokens:             m.MaxTokens,
		StructuredTemperature: p.StructuredTemperature,
		RawTemperature:        p.RawTemperature,
		ValidationTemperature: p.ValidationTemperature,
		ConcurrentExtraction:  p.ConcurrentExtraction,
	}
}

// StageError reports which stage aborted the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Outcome is returned by every run, successful or not.
type Outcome struct {
	DocumentType string
	Structured   map[string]any
	RawText      string
	// Validated is the cross-validation object; nil when the run aborted
	Validated  map[string]any
	Provenance map[string]reconcile.Provenance
	Trail      []StepRecord
	Duration   time.Duration
}

// Pipeline is safe for concurrent use by multiple documents.
type Pipeline struct {
	model    modelclient.Completer
	codec    *imagecodec.Codec
	settings Settings
	log      *logger.Logger
}

// New creates a pipeline.
func New(model modelclient.Completer, codec *imagecodec.Codec, settings Settings, log *logger.Logger) *Pipeline {
	return &Pipeline{
		model:    model,
		codec:    codec,
		settings: settings,
		log:      log.WithComponent("pipeline"),
	}
}

// Process runs the protocol on the JPEG at imagePath. Any transport failure,
// non-2xx response or malformed output aborts immediately: the failing
// stage's record carries the error and later stages never run. There is no
// retry. The returned Outcome always holds the trail of attempted stages.
func (p *Pipeline) Process(ctx context.Context, imagePath string, tmpl Template) (*Outcome, error) {
	start := time.Now()
	trail := &AuditTrail{}
	log := p.log.WithDocumentType(tmpl.DocumentType)
	out := &Outcome{DocumentType: tmpl.DocumentType}

	finish := func(err error) (*Outcome, error) {
		out.Trail = trail.Records()
		out.Duration = time.Since(start)
		if err != nil {
			log.Warn().Err(err).
				Int("stages_attempted", len(out.Trail)).
				Int64("elapsed_ms", out.Duration.Milliseconds()).
				Msg("extraction pipeline aborted")
			return out, err
		}
		log.Info().
			Int("fields", len(out.Validated)).
			Int64("elapsed_ms", out.Duration.Milliseconds()).
			Msg("extraction pipeline completed")
		return out, nil
	}

	// Stage 1
	idx := trail.Begin(StageEncode, "Step 1: Encoding the image...")
	encoded, err := p.codec.EncodeFile(imagePath)
	if err != nil {
		trail.Fail(idx, err)
		return finish(&StageError{Stage: StageEncode, Err: err})
	}
	trail.Complete(idx, map[string]any{"status": "Image encoded successfully", "encoded_bytes": len(encoded)})
	dataURL := imagecodec.DataURL(encoded)

	// Stages 2 and 3
	if p.settings.ConcurrentExtraction {
		err = p.extractConcurrently(ctx, trail, dataURL, tmpl, out)
	} else {
		err = p.extractSequentially(ctx, trail, dataURL, tmpl, out)
	}
	if err != nil {
		return finish(err)
	}

	// Stage 4
	validated, err := p.crossValidate(ctx, trail, tmpl, out.Structured, out.RawText)
	if err != nil {
		return finish(err)
	}
	out.Validated = validated

	// Provenance is keyed by schema field names, whatever spelling the model used
	primary, secondary := validated, out.Structured
	if tmpl.Schema != nil {
		primary, secondary = tmpl.Schema.Canonicalize(validated), tmpl.Schema.Canonicalize(out.Structured)
	}
	rec := reconcile.Reconcile(
		[]reconcile.Candidate{
			{Source: SourceCrossValidation, Fields: primary},
			{Source: SourceStructured, Fields: secondary},
		},
		[]reconcile.Evidence{{Source: SourceRawText, Text: out.RawText}},
	)
	out.Provenance = rec.Provenance
	log.Debug().
		Strs("corroborated", rec.Corroborated()).
		Int("fields", len(rec.Provenance)).
		Msg("cross-validation output reconciled")

	return finish(nil)
}

func (p *Pipeline) extractSequentially(ctx context.Context, trail *AuditTrail, dataURL string, tmpl Template, out *Outcome) error {
	idx := trail.Begin(StageStructured, fmt.Sprintf("Step 2: Extracting structured information using %s...", p.settings.VisionModel))
	structured, err := p.structured(ctx, dataURL, tmpl)
	if err != nil {
		trail.Fail(idx, err)
		return &StageError{Stage: StageStructured, Err: err}
	}
	trail.Complete(idx, structured)
	out.Structured = structured

	idx = trail.Begin(StageRaw, fmt.Sprintf("Step 3: Extracting raw text from the image using %s...", p.settings.VisionModel))
	raw, err := p.raw(ctx, dataURL, tmpl)
	if err != nil {
		trail.Fail(idx, err)
		return &StageError{Stage: StageRaw, Err: err}
	}
	trail.Complete(idx, map[string]any{"raw_text": raw})
	out.RawText = raw
	return nil
}

// extractConcurrently records both stages up front so the trail keeps stage
// order. The first failure cancels the other call.
func (p *Pipeline) extractConcurrently(ctx context.Context, trail *AuditTrail, dataURL string, tmpl Template, out *Outcome) error {
	structuredIdx := trail.Begin(StageStructured, fmt.Sprintf("Step 2: Extracting structured information using %s...", p.settings.VisionModel))
	rawIdx := trail.Begin(StageRaw, fmt.Sprintf("Step 3: Extracting raw text from the image using %s...", p.settings.VisionModel))

	g, gctx := errgroup.WithContext(ctx)
	var structured map[string]any
	var raw string

	g.Go(func() error {
		var err error
		if structured, err = p.structured(gctx, dataURL, tmpl); err != nil {
			trail.Fail(structuredIdx, err)
			return &StageError{Stage: StageStructured, Err: err}
		}
		trail.Complete(structuredIdx, structured)
		return nil
	})
	g.Go(func() error {
		var err error
		if raw, err = p.raw(gctx, dataURL, tmpl); err != nil {
			trail.Fail(rawIdx, err)
			return &StageError{Stage: StageRaw, Err: err}
		}
		trail.Complete(rawIdx, map[string]any{"raw_text": raw})
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	out.Structured = structured
	out.RawText = raw
	return nil
}

func (p *Pipeline) structured(ctx context.Context, dataURL string, tmpl Template) (map[string]any, error) {
	format := modelclient.JSONFormat(nil)
	if tmpl.SchemaInResponseFormat {
		format = modelclient.JSONFormat(tmpl.Schema.JSONSchema())
	}

	content, err := p.call(ctx, StageStructured, modelclient.ChatRequest{
		Model:          p.settings.VisionModel,
		MaxTokens:      p.settings.MaxTokens,
		Temperature:    p.settings.StructuredTemperature,
		ResponseFormat: format,
		Messages:       []modelclient.Message{modelclient.ImageMessage(dataURL, tmpl.StructuredPrompt)},
	})
	if err != nil {
		return nil, err
	}
	return ParseObject(content)
}

func (p *Pipeline) raw(ctx context.Context, dataURL string, tmpl Template) (string, error) {
	return p.call(ctx, StageRaw, modelclient.ChatRequest{
		Model:          p.settings.VisionModel,
		MaxTokens:      p.settings.MaxTokens,
		Temperature:    p.settings.RawTemperature,
		ResponseFormat: modelclient.TextFormat(),
		Messages:       []modelclient.Message{modelclient.ImageMessage(dataURL, tmpl.RawPrompt)},
	})
}

func (p *Pipeline) crossValidate(ctx context.Context, trail *AuditTrail, tmpl Template, structured map[string]any, rawText string) (map[string]any, error) {
	idx := trail.Begin(StageCrossValidation, fmt.Sprintf("Step 4: Validating and correcting extracted information using %s...", p.settings.ValidationModel))

	structuredJSON, err := json.MarshalIndent(structured, "", "  ")
	if err != nil {
		trail.Fail(idx, err)
		return nil, &StageError{Stage: StageCrossValidation, Err: err}
	}

	format := modelclient.JSONFormat(nil)
	if tmpl.SchemaInResponseFormat {
		format = modelclient.JSONFormat(tmpl.Schema.JSONSchema())
	}

	content, err := p.call(ctx, StageCrossValidation, modelclient.ChatRequest{
		Model:          p.settings.ValidationModel,
		MaxTokens:      p.settings.MaxTokens,
		Temperature:    p.settings.ValidationTemperature,
		ResponseFormat: format,
		Messages:       []modelclient.Message{modelclient.UserMessage(tmpl.ValidationPrompt(string(structuredJSON), rawText))},
	})
	if err == nil {
		var validated map[string]any
		if validated, err = ParseObject(content); err == nil {
			trail.Complete(idx, validated)
			return validated, nil
		}
	}
	trail.Fail(idx, err)
	return nil, &StageError{Stage: StageCrossValidation, Err: err}
}

func (p *Pipeline) call(ctx context.Context, stage Stage, req modelclient.ChatRequest) (string, error) {
	start := time.Now()
	p.log.Debug().Str("stage", stage.String()).Str("model", req.Model).Msg("stage started")

	content, err := p.model.Complete(ctx, req)

	ev := p.log.Info()
	if err != nil {
		ev = p.log.Error().Err(err)
		if errors.Is(err, context.Canceled) {
			ev = p.log.Warn().Err(err)
		}
	}
	ev.Str("stage", stage.String()).
		Str("model", req.Model).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("stage finished")
	return content, err
}
