// Package esrgan implements the primary neural backend as a client of a
// Real-ESRGAN inference sidecar. The sidecar owns model weights and GPU/CPU
// inference; this package only speaks its small JSON protocol.
package esrgan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/imaging"
	"github.com/marchcraft/upscaled/internal/model"
)

const (
	inferencePath = "/inference"

	// probeTimeout bounds the startup availability check.
	probeTimeout = 2 * time.Second

	// maxErrorBody caps how much of an error response is read for messages.
	maxErrorBody = 4 << 10
)

var profile = backend.Profile{
	ID:                model.BackendESRGAN,
	Quality:           model.QualityHigh,
	Rank:              0,
	BaseMemoryMB:      1200,
	MemPerMegapixelMB: 12,
	SpeedClass:        "slow",
	TileSizes:         []int{512, 400, 256},
	Models: []string{
		"realesrgan-x4plus",
		"realesrgan-x4plus-anime",
		"realesrnet-x4plus",
	},
}

// Config points at the inference sidecar.
type Config struct {
	BaseURL string
	Client  *http.Client // optional; defaults to http.DefaultClient
}

// Upscaler is an HTTP client for the inference sidecar.
type Upscaler struct {
	baseURL string
	client  *http.Client
}

// inferenceRequest is the sidecar's request envelope.
type inferenceRequest struct {
	Input inferenceInput `json:"input"`
}

type inferenceInput struct {
	SourceImage string `json:"source_image"`
	Scale       int    `json:"scale"`
	Model       string `json:"model,omitempty"`
	TileSize    int    `json:"tile_size,omitempty"`
}

// inferenceResponse is the sidecar's reply: base64 image on success, error
// message otherwise.
type inferenceResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// Probe returns the probe table entry. The sidecar counts as available when
// its root endpoint answers within the probe timeout.
func Probe(cfg Config) backend.Probe {
	return backend.Probe{
		Profile: profile,
		Init: func(ctx context.Context) (backend.Upscaler, error) {
			u := New(cfg)
			if err := u.ping(ctx); err != nil {
				return nil, err
			}
			return u, nil
		},
	}
}

// New returns a sidecar client without checking reachability.
func New(cfg Config) *Upscaler {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Upscaler{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

// Profile implements backend.Upscaler.
func (u *Upscaler) Profile() backend.Profile { return profile }

func (u *Upscaler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("sidecar probe: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar probe: status %d", resp.StatusCode)
	}
	return nil
}

// Upscale implements backend.Upscaler by posting the image to the sidecar's
// inference endpoint.
func (u *Upscaler) Upscale(ctx context.Context, req backend.Request) (backend.Result, error) {
	payload, err := json.Marshal(inferenceRequest{
		Input: inferenceInput{
			SourceImage: base64.StdEncoding.EncodeToString(req.Image),
			Scale:       req.Scale,
			Model:       req.Model,
			TileSize:    req.TileSize,
		},
	})
	if err != nil {
		return backend.Result{}, fmt.Errorf("marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+inferencePath, bytes.NewReader(payload))
	if err != nil {
		return backend.Result{}, fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return backend.Result{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	var out inferenceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&out); err != nil {
		return backend.Result{}, fmt.Errorf("decode inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return backend.Result{}, fmt.Errorf("inference failed: %s", msg)
	}

	data, err := base64.StdEncoding.DecodeString(out.Result)
	if err != nil {
		return backend.Result{}, fmt.Errorf("decode inference result: %w", err)
	}

	w, h, _, err := imaging.Dimensions(data)
	if err != nil {
		return backend.Result{}, fmt.Errorf("inspect inference result: %w", err)
	}
	return backend.Result{Image: data, Width: w, Height: h}, nil
}
