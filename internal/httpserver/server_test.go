package httpserver

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openasr/parakeetd/internal/app"
	"github.com/openasr/parakeetd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr:     ":0",
			RequestTimeout: 30 * time.Second,
		},
		API: config.APIConfig{Prefix: "/v1"},
		Model: config.ModelConfig{
			Name:         "parakeet-tdt-0.6b-v2",
			SidecarURL:   "http://127.0.0.1:1",
			LoadTimeout:  time.Second,
			InferTimeout: time.Second,
		},
		Audio: config.AudioConfig{
			MaxUploadMB:    1,
			TempDir:        t.TempDir(),
			FFmpegBin:      "/nonexistent/ffmpeg",
			FFprobeBin:     "/nonexistent/ffprobe",
			ProbeTimeout:   time.Second,
			ConvertTimeout: time.Second,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	container, err := app.NewContainer(cfg, nil, nil, nil)
	require.NoError(t, err)
	server, err := New(container)
	require.NoError(t, err)
	return server
}

func decodeErrorEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "response must carry an error object: %v", body)
	return detail
}

func multipartBody(t *testing.T, fields map[string]string, filename string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

// wavHeader16kMono is a minimal RIFF header that the metadata fast path
// accepts, so tests run without ffprobe installed.
func wavHeader16kMono() []byte {
	buf := make([]byte, 0, 44)
	buf = append(buf, []byte("RIFF")...)
	buf = binary.LittleEndian.AppendUint32(buf, 36+32000)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 16000)
	buf = binary.LittleEndian.AppendUint32(buf, 32000)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, 32000)
	return buf
}

func TestRootRoute(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "parakeetd", body["service"])
	require.Equal(t, "parakeet-tdt-0.6b-v2", body["model"])
}

func TestHealthReportsUnloadedModel(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, false, body["model_loaded"])
	require.Equal(t, "degraded", body["status"])
}

func TestListModels(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 4)
}

func TestGetModelNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/v1/models/unknown-model", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "invalid_request_error", detail["type"])
	require.Equal(t, "model_id", detail["param"])
	require.Equal(t, "model_not_found", detail["code"])
	require.Contains(t, detail["message"], "unknown-model")
}

func TestGetModelFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/v1/models/whisper-1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "whisper-1", body["id"])
}

func TestTranscriptionsRequiresFile(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	buf, contentType := multipartBody(t, map[string]string{"model": "whisper-1"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "file", detail["param"])
}

func TestTranscriptionsRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	buf, contentType := multipartBody(t, map[string]string{"language": "fr"}, "clip.wav", wavHeader16kMono())
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "unsupported_parameter", detail["code"])
	require.Equal(t, "language", detail["param"])
}

func TestTranscriptionsRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	buf, contentType := multipartBody(t, nil, "notes.txt", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "invalid_file_format", detail["code"])
}

func TestTranscriptionsBodyLimitKeepsEnvelope(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))

	// Three times the configured 1MB upload cap, past the server's own
	// body limit headroom, so the request is rejected before the handler.
	oversized := bytes.Repeat([]byte("x"), 3*1024*1024)
	buf, contentType := multipartBody(t, nil, "clip.wav", oversized)
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "file_too_large", detail["code"])
	require.Contains(t, detail["message"], "Maximum allowed: 1.0MB")
}

func TestTranscriptionsModelNotLoaded(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	buf, contentType := multipartBody(t, nil, "clip.wav", wavHeader16kMono())
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "model_not_loaded", detail["code"])
	require.NotEmpty(t, detail["request_id"])
}

func TestTranscriptionsStreamRejectedForGPT4oModels(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(t))
	fields := map[string]string{"model": "gpt-4o-transcribe", "stream": "true"}
	buf, contentType := multipartBody(t, fields, "clip.wav", wavHeader16kMono())
	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	detail := decodeErrorEnvelope(t, resp)
	require.Equal(t, "stream", detail["param"])
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.API.APIKey = "secret-key"
	server := newTestServer(t, cfg)

	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = server.App().Test(req)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	resp, err = server.App().Test(req)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndRootSkipAuth(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.API.APIKey = "secret-key"
	server := newTestServer(t, cfg)

	for _, path := range []string{"/", "/health"} {
		resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.NotEqual(t, http.StatusUnauthorized, resp.StatusCode, "path %s", path)
	}
}
