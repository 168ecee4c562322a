package backend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/model"
)

// stubUpscaler is a minimal Upscaler for registry tests.
type stubUpscaler struct {
	profile backend.Profile
}

func (s *stubUpscaler) Upscale(_ context.Context, _ backend.Request) (backend.Result, error) {
	return backend.Result{}, nil
}

func (s *stubUpscaler) Profile() backend.Profile { return s.profile }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func okProbe(p backend.Profile) backend.Probe {
	return backend.Probe{
		Profile: p,
		Init: func(_ context.Context) (backend.Upscaler, error) {
			return &stubUpscaler{profile: p}, nil
		},
	}
}

func failProbe(p backend.Profile, err error) backend.Probe {
	return backend.Probe{
		Profile: p,
		Init: func(_ context.Context) (backend.Upscaler, error) {
			return nil, err
		},
	}
}

func panicProbe(p backend.Profile) backend.Probe {
	return backend.Probe{
		Profile: p,
		Init: func(_ context.Context) (backend.Upscaler, error) {
			panic("missing shared library")
		},
	}
}

var (
	esrganProfile = backend.Profile{
		ID: model.BackendESRGAN, Quality: model.QualityHigh, Rank: 0,
		Models: []string{"realesrgan-x4plus", "realesrgan-x4plus-anime"},
	}
	ncnnProfile = backend.Profile{
		ID: model.BackendNCNN, Quality: model.QualityHigh, Rank: 1,
		Models: []string{"realesrgan-x4plus", "realesr-animevideov3"},
	}
	classicalProfile = backend.Profile{
		ID: model.BackendClassical, Quality: model.QualityMedium, Rank: 2,
		Terminal: true,
	}
)

func TestRegistryOrdersByQualityRank(t *testing.T) {
	// Probe order deliberately scrambled; registry order must follow rank.
	reg, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		okProbe(classicalProfile),
		okProbe(esrganProfile),
		okProbe(ncnnProfile),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	avail := reg.Available()
	if len(avail) != 3 {
		t.Fatalf("Available() returned %d backends, want 3", len(avail))
	}
	want := []string{model.BackendESRGAN, model.BackendNCNN, model.BackendClassical}
	for i, id := range want {
		if avail[i].Profile.ID != id {
			t.Errorf("Available()[%d] = %q, want %q", i, avail[i].Profile.ID, id)
		}
	}
	if !avail[len(avail)-1].Profile.Terminal {
		t.Error("last available backend is not the terminal fallback")
	}
}

func TestRegistryFailedProbeIsIsolated(t *testing.T) {
	reg, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		failProbe(esrganProfile, errors.New("sidecar unreachable")),
		okProbe(ncnnProfile),
		okProbe(classicalProfile),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	avail := reg.Available()
	if len(avail) != 2 {
		t.Fatalf("Available() returned %d backends, want 2", len(avail))
	}
	if avail[0].Profile.ID != model.BackendNCNN {
		t.Errorf("best available = %q, want ncnn", avail[0].Profile.ID)
	}

	e, ok := reg.Lookup(model.BackendESRGAN)
	if !ok {
		t.Fatal("failed backend missing from registry entries")
	}
	if e.Available {
		t.Error("failed backend marked available")
	}
	if e.ProbeErr != "sidecar unreachable" {
		t.Errorf("ProbeErr = %q, want probe error recorded", e.ProbeErr)
	}
}

func TestRegistryPanickingProbeIsIsolated(t *testing.T) {
	reg, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		panicProbe(esrganProfile),
		okProbe(classicalProfile),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	e, _ := reg.Lookup(model.BackendESRGAN)
	if e.Available {
		t.Error("panicking probe marked available")
	}
	if e.ProbeErr == "" {
		t.Error("panic not recorded as probe error")
	}
	if len(reg.Available()) != 1 {
		t.Errorf("Available() = %d backends, want just the terminal", len(reg.Available()))
	}
}

func TestRegistryRequiresTerminal(t *testing.T) {
	_, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		okProbe(esrganProfile),
		failProbe(classicalProfile, errors.New("impossible")),
	})
	if !errors.Is(err, backend.ErrNoTerminalBackend) {
		t.Errorf("err = %v, want ErrNoTerminalBackend", err)
	}
}

func TestCandidatesFilterByModelHint(t *testing.T) {
	reg, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		okProbe(esrganProfile),
		okProbe(ncnnProfile),
		okProbe(classicalProfile),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		hint string
		want []string
	}{
		{"auto", []string{model.BackendESRGAN, model.BackendNCNN, model.BackendClassical}},
		{"", []string{model.BackendESRGAN, model.BackendNCNN, model.BackendClassical}},
		{"realesrgan-x4plus-anime", []string{model.BackendESRGAN, model.BackendClassical}},
		{"realesr-animevideov3", []string{model.BackendNCNN, model.BackendClassical}},
		{"no-such-model", []string{model.BackendClassical}},
	}

	for _, tc := range tests {
		got := reg.Candidates(tc.hint)
		if len(got) != len(tc.want) {
			t.Errorf("Candidates(%q) = %d entries, want %d", tc.hint, len(got), len(tc.want))
			continue
		}
		for i, id := range tc.want {
			if got[i].Profile.ID != id {
				t.Errorf("Candidates(%q)[%d] = %q, want %q", tc.hint, i, got[i].Profile.ID, id)
			}
		}
	}
}

func TestCandidatesNeverEmpty(t *testing.T) {
	reg, err := backend.NewRegistry(context.Background(), testLogger(), []backend.Probe{
		failProbe(esrganProfile, errors.New("down")),
		failProbe(ncnnProfile, errors.New("down")),
		okProbe(classicalProfile),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got := reg.Candidates("realesrgan-x4plus-anime")
	if len(got) != 1 || got[0].Profile.ID != model.BackendClassical {
		t.Errorf("Candidates with all externals down = %v, want terminal only", got)
	}
}
