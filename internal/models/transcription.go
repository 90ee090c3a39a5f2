package models

import (
	"fmt"

	"github.com/openasr/parakeetd/internal/apierrors"
)

// Model aliases that stream=true is rejected for, matching OpenAI's
// behavior for its own transcribe models.
var openAIStyleModels = map[string]struct{}{
	"gpt-4o-transcribe":      {},
	"gpt-4o-mini-transcribe": {},
}

// TranscriptionParams carries the validated form fields of a
// transcription request. Instances only exist fully validated: the
// constructor rejects any unsupported value, so downstream code never
// sees a partially valid set of parameters.
type TranscriptionParams struct {
	Model                  string
	Language               string
	Prompt                 string
	ResponseFormat         string
	Temperature            *float64
	TimestampGranularities []string
	ChunkingStrategy       string
	Include                []string
	Stream                 bool
}

// ParamsInput is the raw, unvalidated form data.
type ParamsInput struct {
	Model                  string
	Language               string
	Prompt                 string
	ResponseFormat         string
	Temperature            *float64
	TimestampGranularities []string
	ChunkingStrategy       string
	Include                []string
	Stream                 bool
}

// NewTranscriptionParams validates raw form input and returns immutable
// parameters. prompt, chunking_strategy, and include are accepted but
// ignored for OpenAI compatibility.
func NewTranscriptionParams(in ParamsInput) (TranscriptionParams, error) {
	model := in.Model
	if model == "" {
		model = "whisper-1"
	}

	if in.Language != "" && in.Language != "en" {
		return TranscriptionParams{}, apierrors.UnsupportedParameter(
			"language", in.Language,
			"Only English ('en') is supported by this model.",
		)
	}

	format := in.ResponseFormat
	if format == "" {
		format = "json"
	}
	if format != "json" {
		return TranscriptionParams{}, apierrors.UnsupportedParameter(
			"response_format", format,
			"Only 'json' format is supported.",
		)
	}

	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 1) {
		err := apierrors.Validation(fmt.Sprintf(
			"temperature must be between 0.0 and 1.0, got %v", *in.Temperature,
		))
		err.Param = "temperature"
		err.Code = "invalid_temperature"
		return TranscriptionParams{}, err
	}

	if in.TimestampGranularities != nil {
		return TranscriptionParams{}, apierrors.UnsupportedParameter(
			"timestamp_granularities", in.TimestampGranularities,
			"Timestamp granularities are not supported by this implementation.",
		)
	}

	if in.Stream {
		if _, ok := openAIStyleModels[model]; ok {
			return TranscriptionParams{}, apierrors.UnsupportedParameter(
				"stream", true,
				fmt.Sprintf("Streaming is not supported for model '%s'.", model),
			)
		}
	}

	return TranscriptionParams{
		Model:                  model,
		Language:               in.Language,
		Prompt:                 in.Prompt,
		ResponseFormat:         format,
		Temperature:            in.Temperature,
		TimestampGranularities: in.TimestampGranularities,
		ChunkingStrategy:       in.ChunkingStrategy,
		Include:                in.Include,
		Stream:                 in.Stream,
	}, nil
}

// TokenUsageDetails breaks input tokens down by modality. The values are
// fixed: audio requests always report one audio token and zero text
// tokens, mirroring the third-party API's schema rather than inference.
type TokenUsageDetails struct {
	TextTokens  int `json:"text_tokens"`
	AudioTokens int `json:"audio_tokens"`
}

// TokenUsage is the fixed usage block attached to every transcription
// response.
type TokenUsage struct {
	Type              string            `json:"type"`
	InputTokens       int               `json:"input_tokens"`
	InputTokenDetails TokenUsageDetails `json:"input_token_details"`
	OutputTokens      int               `json:"output_tokens"`
	TotalTokens       int               `json:"total_tokens"`
}

// FixedTokenUsage returns the constant usage structure.
func FixedTokenUsage() TokenUsage {
	return TokenUsage{
		Type:              "tokens",
		InputTokens:       1,
		InputTokenDetails: TokenUsageDetails{TextTokens: 0, AudioTokens: 1},
		OutputTokens:      1,
		TotalTokens:       2,
	}
}

// TranscriptionResponse is the 200 body of the transcriptions endpoint.
type TranscriptionResponse struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

// NewTranscriptionResponse wraps transcribed text with the fixed usage.
func NewTranscriptionResponse(text string) TranscriptionResponse {
	return TranscriptionResponse{Text: text, Usage: FixedTokenUsage()}
}
