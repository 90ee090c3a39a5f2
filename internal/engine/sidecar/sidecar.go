// Package sidecar implements the engine backend against the local
// inference sidecar's HTTP API.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultURL         = "http://localhost:8387"
	defaultLoadTimeout = 10 * time.Minute
	defaultTimeout     = 5 * time.Minute
)

// Config holds sidecar connection settings.
type Config struct {
	URL         string        `json:"url" yaml:"url"`
	Model       string        `json:"model" yaml:"model"`
	Device      string        `json:"device,omitempty" yaml:"device"`
	LoadTimeout time.Duration `json:"load_timeout" yaml:"load_timeout"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Client drives the sidecar. It satisfies engine.Backend.
type Client struct {
	cfg    Config
	client *http.Client
}

// New builds a sidecar client with defaults applied.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// IsAvailable checks whether the sidecar answers its health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Load asks the sidecar to pull the model into memory. Model loads can
// take minutes on a cold cache, so this uses its own timeout.
func (c *Client) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"model":  c.cfg.Model,
		"device": c.cfg.Device,
	})
	if err != nil {
		return fmt.Errorf("encode load request: %w", err)
	}
	return c.post(ctx, "/load", body, nil)
}

// Infer submits paths for transcription. The results field of the
// response is returned raw: its shape varies across sidecar versions and
// is normalized by the engine.
func (c *Client) Infer(ctx context.Context, paths []string, batchSize int) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"paths":      paths,
		"batch_size": batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transcribe request: %w", err)
	}

	var result struct {
		Results json.RawMessage `json:"results"`
	}
	if err := c.post(ctx, "/transcribe", body, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// Unload releases the model and accelerator memory on the sidecar.
func (c *Client) Unload(ctx context.Context) error {
	return c.post(ctx, "/unload", []byte("{}"), nil)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sidecar %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode sidecar response: %w", err)
	}
	return nil
}
