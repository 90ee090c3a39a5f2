package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openasr/parakeetd/internal/apierrors"
)

func TestNewTranscriptionParamsDefaults(t *testing.T) {
	t.Parallel()

	params, err := NewTranscriptionParams(ParamsInput{})
	require.NoError(t, err)
	require.Equal(t, "whisper-1", params.Model)
	require.Equal(t, "json", params.ResponseFormat)
	require.Empty(t, params.Language)
}

func TestNewTranscriptionParamsAcceptsEnglish(t *testing.T) {
	t.Parallel()

	params, err := NewTranscriptionParams(ParamsInput{Language: "en"})
	require.NoError(t, err)
	require.Equal(t, "en", params.Language)
}

func TestNewTranscriptionParamsRejectsOtherLanguages(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriptionParams(ParamsInput{Language: "fr"})
	require.Error(t, err)
	typed, ok := apierrors.As(err)
	require.True(t, ok)
	require.Equal(t, apierrors.KindUnsupportedParameter, typed.Kind)
	require.Equal(t, "language", typed.Param)
	require.Contains(t, typed.Message, "Only English ('en') is supported")
}

func TestNewTranscriptionParamsRejectsNonJSONFormat(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"text", "srt", "verbose_json", "vtt"} {
		_, err := NewTranscriptionParams(ParamsInput{ResponseFormat: format})
		require.Error(t, err, "format %q", format)
		require.True(t, apierrors.IsKind(err, apierrors.KindUnsupportedParameter))
	}
}

func TestNewTranscriptionParamsTemperatureBounds(t *testing.T) {
	t.Parallel()

	for _, temp := range []float64{0, 0.5, 1} {
		v := temp
		_, err := NewTranscriptionParams(ParamsInput{Temperature: &v})
		require.NoError(t, err, "temperature %v", temp)
	}
	for _, temp := range []float64{-0.1, 1.5, 2} {
		v := temp
		_, err := NewTranscriptionParams(ParamsInput{Temperature: &v})
		require.Error(t, err, "temperature %v", temp)
		typed, ok := apierrors.As(err)
		require.True(t, ok)
		require.Equal(t, apierrors.KindValidation, typed.Kind)
		require.Equal(t, "temperature", typed.Param)
		require.Equal(t, "invalid_temperature", typed.Code)
	}
}

func TestNewTranscriptionParamsRejectsTimestampGranularities(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriptionParams(ParamsInput{TimestampGranularities: []string{"word"}})
	require.Error(t, err)
	require.True(t, apierrors.IsKind(err, apierrors.KindUnsupportedParameter))

	// An empty but present list is still a rejection; only absence passes.
	_, err = NewTranscriptionParams(ParamsInput{TimestampGranularities: []string{}})
	require.Error(t, err)
}

func TestNewTranscriptionParamsStreamRules(t *testing.T) {
	t.Parallel()

	for _, model := range []string{"gpt-4o-transcribe", "gpt-4o-mini-transcribe"} {
		_, err := NewTranscriptionParams(ParamsInput{Model: model, Stream: true})
		require.Error(t, err, "model %q", model)
		typed, ok := apierrors.As(err)
		require.True(t, ok)
		require.Equal(t, "stream", typed.Param)
	}

	params, err := NewTranscriptionParams(ParamsInput{Model: "whisper-1", Stream: true})
	require.NoError(t, err)
	require.True(t, params.Stream)
}

func TestFixedTokenUsage(t *testing.T) {
	t.Parallel()

	usage := FixedTokenUsage()
	require.Equal(t, "tokens", usage.Type)
	require.Equal(t, 1, usage.InputTokens)
	require.Equal(t, 1, usage.OutputTokens)
	require.Equal(t, 2, usage.TotalTokens)
	require.Equal(t, 1, usage.InputTokenDetails.AudioTokens)
	require.Equal(t, 0, usage.InputTokenDetails.TextTokens)
}

func TestNewTranscriptionResponse(t *testing.T) {
	t.Parallel()

	resp := NewTranscriptionResponse("hello")
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, FixedTokenUsage(), resp.Usage)
}
