package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrNoTerminalBackend is returned when registry construction ends with no
// available terminal backend. The classical resampler has no external
// dependency, so hitting this indicates a broken probe table.
var ErrNoTerminalBackend = errors.New("no terminal fallback backend available")

// Probe pairs a backend profile with its initializer. Init is run exactly
// once at startup; returning an error (or panicking) marks the backend
// unavailable without aborting startup.
type Probe struct {
	Profile Profile
	Init    func(ctx context.Context) (Upscaler, error)
}

// Entry is one probed backend in the registry. Upscaler is nil when the
// backend is unavailable.
type Entry struct {
	Profile   Profile
	Upscaler  Upscaler
	Available bool
	ProbeErr  string
}

// Registry holds the probed backend set. It is built once at startup and
// never mutated afterwards, so concurrent reads need no locking.
type Registry struct {
	entries []Entry
}

// NewRegistry evaluates the probe table and builds the immutable registry.
// Probes are isolated from each other: a failing or panicking probe records
// the backend as unavailable and moves on. Entries are ordered by quality
// rank, best first, with the terminal backend always last.
func NewRegistry(ctx context.Context, logger *slog.Logger, probes []Probe) (*Registry, error) {
	entries := make([]Entry, 0, len(probes))
	for _, p := range probes {
		e := Entry{Profile: p.Profile}

		up, err := runProbe(ctx, p)
		if err != nil {
			e.ProbeErr = err.Error()
			logger.Warn("backend unavailable",
				"backend", p.Profile.ID,
				"error", err,
			)
		} else {
			e.Upscaler = up
			e.Available = true
			logger.Info("backend available",
				"backend", p.Profile.ID,
				"quality", p.Profile.Quality,
			)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Profile.Rank < entries[j].Profile.Rank
	})

	r := &Registry{entries: entries}
	if !r.hasTerminal() {
		return nil, ErrNoTerminalBackend
	}
	return r, nil
}

// runProbe invokes a probe initializer, converting panics into errors so a
// single misbehaving probe cannot take down startup.
func runProbe(ctx context.Context, p Probe) (up Upscaler, err error) {
	defer func() {
		if r := recover(); r != nil {
			up, err = nil, fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Init(ctx)
}

func (r *Registry) hasTerminal() bool {
	for _, e := range r.entries {
		if e.Profile.Terminal && e.Available {
			return true
		}
	}
	return false
}

// Entries returns every probed backend, available or not, in quality order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Available returns the available backends in descending quality order.
func (r *Registry) Available() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Available {
			out = append(out, e)
		}
	}
	return out
}

// Candidates returns the available backends that can serve the given model
// hint, in descending quality order. The terminal backend accepts every
// hint, so the result is never empty.
func (r *Registry) Candidates(modelHint string) []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Available && e.Profile.SupportsModel(modelHint) {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entry for the given backend id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Profile.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
