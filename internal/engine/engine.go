package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/imaging"
	"github.com/marchcraft/upscaled/internal/model"
	"github.com/marchcraft/upscaled/internal/store"
)

// Defaults applied by New when an option is zero.
const (
	DefaultMaxImageBytes  = 2 << 20
	DefaultBudgetMB       = 512
	DefaultHostMemoryMB   = 2048
	DefaultAttemptTimeout = 120 * time.Second

	// persistTimeout bounds best-effort diagnostic writes. Persistence runs
	// on its own context so a cancelled request still leaves a record.
	persistTimeout = 5 * time.Second
)

// Options configures the orchestrator's resource bounds.
type Options struct {
	MaxImageBytes  int64
	MemoryBudgetMB float64
	HostMemoryMB   int64
	AttemptTimeout time.Duration
}

// Engine runs the per-request fallback state machine over the backend
// registry. All per-request state is local to Upscale; the only shared state
// is the immutable registry and the weighted memory semaphore.
type Engine struct {
	registry *backend.Registry
	store    store.Store
	logger   *slog.Logger
	mem      *semaphore.Weighted
	opts     Options
}

// New creates an orchestrator. The weighted semaphore is sized to the host
// memory ceiling; each attempt holds its estimated megabytes for its
// duration, so aggregate estimated memory across concurrent requests stays
// under the ceiling.
func New(reg *backend.Registry, st store.Store, logger *slog.Logger, opts Options) *Engine {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.MemoryBudgetMB <= 0 {
		opts.MemoryBudgetMB = DefaultBudgetMB
	}
	if opts.HostMemoryMB <= 0 {
		opts.HostMemoryMB = DefaultHostMemoryMB
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Engine{
		registry: reg,
		store:    st,
		logger:   logger,
		mem:      semaphore.NewWeighted(opts.HostMemoryMB),
		opts:     opts,
	}
}

// source describes the validated input image.
type source struct {
	width  int
	height int
	format string
}

// Upscale runs one request through the fallback chain and returns the
// normalized result. Validation failures return *ValidationError without any
// backend being consulted; exhausting the chain returns
// *AllBackendsFailedError.
func (e *Engine) Upscale(ctx context.Context, req model.UpscaleRequest) (*model.UpscaleResult, error) {
	id := model.NewID()
	start := time.Now()

	src, verr := e.validate(req)
	if verr != nil {
		e.persistOutcome(rejectedRecord(id, req, verr, start), nil)
		requestsTotal.WithLabelValues(model.BackendNone, "rejected").Inc()
		return nil, verr
	}

	modelHint := req.Model
	if modelHint == "" {
		modelHint = model.ModelAuto
	}

	candidates := e.registry.Candidates(modelHint)

	// Reject upfront when even the cheapest candidate cannot fit the host.
	if cheapest := e.cheapestEstimate(candidates, src, req.Scale); cheapest > float64(e.opts.HostMemoryMB) {
		verr := &ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("estimated %.0f MB exceeds host memory ceiling %d MB", cheapest, e.opts.HostMemoryMB),
		}
		e.persistOutcome(rejectedRecord(id, req, verr, start), nil)
		requestsTotal.WithLabelValues(model.BackendNone, "rejected").Inc()
		return nil, verr
	}

	var attempts []model.Attempt
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			// Client is gone; abandon the chain instead of finishing a
			// now-useless upscale.
			e.persistOutcome(failedRecord(id, req, src, "request cancelled", start), attempts)
			requestsTotal.WithLabelValues(model.BackendNone, "cancelled").Inc()
			return nil, fmt.Errorf("request cancelled: %w", err)
		}

		estMB := EstimateMB(src.width, src.height, req.Scale, cand.Profile)
		tile := TileSize(estMB, e.opts.MemoryBudgetMB, cand.Profile)

		attemptStart := time.Now()
		res, err := e.attempt(ctx, cand, backend.Request{
			Image:    req.Image,
			Width:    src.width,
			Height:   src.height,
			Scale:    req.Scale,
			Model:    modelHint,
			TileSize: tile,
		}, estMB)

		attempt := model.Attempt{
			RequestID:  id,
			Seq:        len(attempts),
			Backend:    cand.Profile.ID,
			TileSize:   tile,
			DurationMS: int(time.Since(attemptStart).Milliseconds()),
			CreatedAt:  time.Now().UTC(),
		}

		if err == nil {
			result, buildErr := buildResult(id, req, src, cand.Profile, res, estMB, tile, len(attempts)+1, time.Since(start))
			if buildErr == nil {
				attempt.Outcome = model.OutcomeSuccess
				attempts = append(attempts, attempt)
				attemptsTotal.WithLabelValues(cand.Profile.ID, model.OutcomeSuccess).Inc()
				fallbackDepth.Observe(float64(len(attempts) - 1))
				requestsTotal.WithLabelValues(cand.Profile.ID, "success").Inc()

				e.persistOutcome(completedRecord(id, req, result, start), attempts)
				e.logger.Info("upscale completed",
					"request_id", id,
					"backend", cand.Profile.ID,
					"scale", req.Scale,
					"upscaled_size", result.UpscaledSize,
					"attempts", len(attempts),
				)
				return result, nil
			}
			// The backend claimed success but its output is unusable.
			// Classify as a failed attempt and advance the chain.
			err = buildErr
		}

		attempt.Outcome = model.OutcomeFailure
		attempt.Reason = err.Error()
		attempts = append(attempts, attempt)
		attemptsTotal.WithLabelValues(cand.Profile.ID, model.OutcomeFailure).Inc()

		e.logger.Warn("backend attempt failed",
			"request_id", id,
			"backend", cand.Profile.ID,
			"reason", err.Error(),
			"duration_ms", attempt.DurationMS,
		)
	}

	failErr := &AllBackendsFailedError{Attempts: attempts}
	e.persistOutcome(failedRecord(id, req, src, failErr.Error(), start), attempts)
	requestsTotal.WithLabelValues(model.BackendNone, "failure").Inc()
	e.logger.Error("all backends failed", "request_id", id, "attempts", len(attempts))
	return nil, failErr
}

// attempt executes one backend try under a memory reservation and the
// per-attempt timeout. The reservation is released on every exit path.
func (e *Engine) attempt(ctx context.Context, cand backend.Entry, breq backend.Request, estMB float64) (backend.Result, error) {
	weight := int64(math.Ceil(estMB))
	if weight > e.opts.HostMemoryMB {
		return backend.Result{}, fmt.Errorf("estimated %d MB exceeds host memory ceiling %d MB", weight, e.opts.HostMemoryMB)
	}

	if err := e.mem.Acquire(ctx, weight); err != nil {
		return backend.Result{}, fmt.Errorf("memory reservation: %w", err)
	}
	defer e.mem.Release(weight)

	memoryInFlightMB.Add(float64(weight))
	defer memoryInFlightMB.Sub(float64(weight))

	attemptCtx, cancel := context.WithTimeout(ctx, e.opts.AttemptTimeout)
	defer cancel()

	res, err := cand.Upscaler.Upscale(attemptCtx, breq)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return backend.Result{}, fmt.Errorf("attempt timed out after %s", e.opts.AttemptTimeout)
		}
		return backend.Result{}, err
	}
	return res, nil
}

// validate applies the request whitelists and decodes the image header.
// Undecodable input is a validation error here, not a backend failure: the
// classical fallback uses the same decoder, so input it cannot read would
// otherwise surface as an impossible all-backends failure.
func (e *Engine) validate(req model.UpscaleRequest) (source, *ValidationError) {
	if len(req.Image) == 0 {
		return source{}, &ValidationError{Field: "file", Reason: "image payload is empty"}
	}
	if int64(len(req.Image)) > e.opts.MaxImageBytes {
		return source{}, &ValidationError{
			Field:    "file",
			Reason:   fmt.Sprintf("payload is %d bytes, limit is %d", len(req.Image), e.opts.MaxImageBytes),
			TooLarge: true,
		}
	}
	if !model.ValidScale(req.Scale) {
		return source{}, &ValidationError{Field: "scale", Reason: "must be one of 2, 4, 8"}
	}
	if req.Format != "" && !model.ValidFormat(req.Format) {
		return source{}, &ValidationError{Field: "format", Reason: "must be one of auto, png, jpeg"}
	}

	w, h, format, err := imaging.Dimensions(req.Image)
	if err != nil {
		return source{}, &ValidationError{Field: "file", Reason: "unreadable or unsupported image"}
	}
	return source{width: w, height: h, format: format}, nil
}

// cheapestEstimate returns the lowest memory estimate across candidates.
func (e *Engine) cheapestEstimate(candidates []backend.Entry, src source, scale int) float64 {
	cheapest := math.Inf(1)
	for _, c := range candidates {
		if est := EstimateMB(src.width, src.height, scale, c.Profile); est < cheapest {
			cheapest = est
		}
	}
	return cheapest
}

// persistOutcome writes the request record and its attempts, best effort.
// Runs on a fresh context so client cancellation cannot drop diagnostics.
func (e *Engine) persistOutcome(rec *model.RequestRecord, attempts []model.Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.store.CreateRecord(ctx, rec); err != nil {
		e.logger.Error("persist request record", "request_id", rec.ID, "error", err)
		return
	}
	for i := range attempts {
		if err := e.store.InsertAttempt(ctx, &attempts[i]); err != nil {
			e.logger.Error("persist attempt", "request_id", rec.ID, "seq", attempts[i].Seq, "error", err)
		}
	}
}

func rejectedRecord(id string, req model.UpscaleRequest, verr *ValidationError, start time.Time) *model.RequestRecord {
	return &model.RequestRecord{
		ID:         id,
		Status:     model.StatusRejected,
		Model:      req.Model,
		Scale:      req.Scale,
		DurationMS: int(time.Since(start).Milliseconds()),
		Error:      verr.Error(),
		CreatedAt:  time.Now().UTC(),
	}
}

func failedRecord(id string, req model.UpscaleRequest, src source, reason string, start time.Time) *model.RequestRecord {
	return &model.RequestRecord{
		ID:           id,
		Status:       model.StatusFailed,
		Model:        req.Model,
		Scale:        req.Scale,
		OriginalSize: model.Size(src.width, src.height),
		DurationMS:   int(time.Since(start).Milliseconds()),
		Error:        reason,
		CreatedAt:    time.Now().UTC(),
	}
}

func completedRecord(id string, req model.UpscaleRequest, res *model.UpscaleResult, start time.Time) *model.RequestRecord {
	return &model.RequestRecord{
		ID:           id,
		Status:       model.StatusCompleted,
		Backend:      res.Backend,
		Model:        req.Model,
		Scale:        req.Scale,
		OriginalSize: res.OriginalSize,
		UpscaledSize: res.UpscaledSize,
		MemoryMB:     res.MemoryUsedMB,
		DurationMS:   int(time.Since(start).Milliseconds()),
		CreatedAt:    time.Now().UTC(),
	}
}
