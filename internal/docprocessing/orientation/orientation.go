// Package orientation asks the vision model how a document photo must be
// turned to be read upright.
package orientation

import (
	"context"
	"image"
	"strconv"
	"strings"

	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/logger"
)

const (
	systemPrompt = "You are a document validator. Your job is to ensure the document is readable. " +
		"Make sure the text is not upside down or rotated incorrectly. If the text is upside down or at an angle, " +
		"provide the correct orientation in degrees (0, 90, 180, 270) based on how a human would read it."
	userPrompt = "Give me the correct orientation of this document in degrees as a JSON object with the key 'orientation'."
)

// Settings for the orientation request.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(m *config.ModelConfig, p *config.PipelineConfig) Settings {
	return Settings{
		Model:       m.VisionModel,
		MaxTokens:   m.OrientationMaxTokens,
		Temperature: p.OrientationTemperature,
	}
}

// Advisor infers document orientation. Its failures are never fatal.
type Advisor struct {
	model    modelclient.Completer
	codec    *imagecodec.Codec
	settings Settings
	log      *logger.Logger
}

// NewAdvisor creates an orientation advisor.
func NewAdvisor(model modelclient.Completer, codec *imagecodec.Codec, settings Settings, log *logger.Logger) *Advisor {
	return &Advisor{
		model:    model,
		codec:    codec,
		settings: settings,
		log:      log.WithComponent("orientation"),
	}
}

// Infer returns the reported orientation in {0, 90, 180, 270}. known is false,
// which differs from 0, when the request failed or the answer was unusable.
func (a *Advisor) Infer(ctx context.Context, img image.Image) (degrees int, known bool) {
	encoded, err := a.codec.Encode(img)
	if err != nil {
		a.log.Warn().Err(err).Msg("could not encode image for orientation")
		return 0, false
	}

	content, err := a.model.Complete(ctx, modelclient.ChatRequest{
		Model:          a.settings.Model,
		MaxTokens:      a.settings.MaxTokens,
		Temperature:    a.settings.Temperature,
		ResponseFormat: modelclient.JSONFormat(nil),
		Messages: []modelclient.Message{
			modelclient.SystemMessage(systemPrompt),
			modelclient.ImageMessage(imagecodec.DataURL(encoded), userPrompt),
		},
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("orientation request failed")
		return 0, false
	}

	degrees, known = Parse(content)
	if !known {
		a.log.Warn().Int("content_len", len(content)).Msg("orientation answer unusable")
		return 0, false
	}
	a.log.Debug().Int("orientation", degrees).Msg("orientation inferred")
	return degrees, true
}

// Parse reads the orientation key of a model answer.
func Parse(content string) (int, bool) {
	obj, err := pipeline.ParseObject(content)
	if err != nil {
		return 0, false
	}

	var d float64
	switch v := obj["orientation"].(type) {
	case float64:
		d = v
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "°")
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "degrees")), 64)
		if err != nil {
			return 0, false
		}
		d = f
	default:
		return 0, false
	}

	switch d {
	case 0, 90, 180, 270:
		return int(d), true
	}
	return 0, false
}

// Correction is the signed clockwise rotation that brings a document
// reported at degrees upright, in the range (-180, 180].
func Correction(degrees int) int {
	switch degrees {
	case 90:
		return 90
	case 180:
		return 180
	case 270:
		return -90
	}
	return 0
}
