// Package ncnn implements the Vulkan-accelerated backend by shelling out to
// the realesrgan-ncnn-vulkan binary. All model files are 4x networks; 2x and
// 8x requests run the 4x model and resample the result.
package ncnn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/imaging"
	"github.com/marchcraft/upscaled/internal/model"
)

// DefaultModel is used when the hint is "auto" or names an unknown model.
const DefaultModel = "realesrgan-x4plus"

// networkScale is the native scale of every shipped model file.
const networkScale = 4

// modelFiles maps model hints to the on-disk file stem (<stem>.bin +
// <stem>.param under the models directory).
var modelFiles = map[string]string{
	"realesrgan-x4plus":       "realesrgan-x4plus",
	"realesrgan-x4plus-anime": "realesrgan-x4plus-anime",
	"realesr-animevideov3":    "realesr-animevideov3-x4",
	"realesrnet-x4plus":       "realesrnet-x4plus",
}

func knownModels() []string {
	out := make([]string, 0, len(modelFiles))
	for name := range modelFiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var profile = backend.Profile{
	ID:                model.BackendNCNN,
	Quality:           model.QualityHigh,
	Rank:              1,
	BaseMemoryMB:      800,
	MemPerMegapixelMB: 8,
	SpeedClass:        "medium",
	TileSizes:         []int{512, 400, 256},
	Models:            knownModels(),
}

// Config locates the binary and its model files.
type Config struct {
	BinaryPath string
	ModelsDir  string
}

// Upscaler runs the realesrgan-ncnn-vulkan binary as a subprocess.
type Upscaler struct {
	cfg Config
}

// Probe returns the probe table entry. Initialization fails when the binary
// is missing or not executable, or when no complete model is installed.
func Probe(cfg Config) backend.Probe {
	return backend.Probe{
		Profile: profile,
		Init: func(_ context.Context) (backend.Upscaler, error) {
			return New(cfg)
		},
	}
}

// New validates the binary and model files and returns the backend.
func New(cfg Config) (*Upscaler, error) {
	info, err := os.Stat(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ncnn binary: %w", err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("ncnn binary %s is not executable", cfg.BinaryPath)
	}

	u := &Upscaler{cfg: cfg}
	if len(u.InstalledModels()) == 0 {
		return nil, fmt.Errorf("no model files found in %s", cfg.ModelsDir)
	}
	return u, nil
}

// Profile implements backend.Upscaler.
func (u *Upscaler) Profile() backend.Profile { return profile }

// InstalledModels lists the models whose .bin and .param files are both
// present in the models directory.
func (u *Upscaler) InstalledModels() []string {
	var out []string
	for _, name := range knownModels() {
		if u.hasModelFiles(modelFiles[name]) {
			out = append(out, name)
		}
	}
	return out
}

func (u *Upscaler) hasModelFiles(stem string) bool {
	for _, ext := range []string{".bin", ".param"} {
		if _, err := os.Stat(filepath.Join(u.cfg.ModelsDir, stem+ext)); err != nil {
			return false
		}
	}
	return true
}

// ResolveModel maps a model hint to an on-disk model name, falling back to
// the default for "auto" and unknown hints.
func ResolveModel(hint string) string {
	if _, ok := modelFiles[hint]; ok {
		return hint
	}
	return DefaultModel
}

// Args builds the command line for one invocation. Split out for testing.
func Args(cfg Config, inPath, outPath string, tileSize int, modelName string) []string {
	return []string{
		"-i", inPath,
		"-o", outPath,
		"-s", strconv.Itoa(networkScale),
		"-t", strconv.Itoa(tileSize),
		"-m", cfg.ModelsDir,
		"-n", modelFiles[modelName],
		"-j", "1:2:1", // single-threaded load/proc/save, keeps peak memory low
		"-f", "png",
	}
}

// Upscale implements backend.Upscaler. Temporary files live in a per-attempt
// directory that is removed on every exit path.
func (u *Upscaler) Upscale(ctx context.Context, req backend.Request) (backend.Result, error) {
	modelName := ResolveModel(req.Model)
	if !u.hasModelFiles(modelFiles[modelName]) {
		return backend.Result{}, fmt.Errorf("model files not found for %s", modelName)
	}

	dir, err := os.MkdirTemp("", "upscaled-ncnn-")
	if err != nil {
		return backend.Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// The binary reads PNG most reliably, so normalize the input first.
	input, _, _, err := imaging.Transcode(req.Image, model.FormatPNG)
	if err != nil {
		return backend.Result{}, err
	}

	inPath := filepath.Join(dir, "input.png")
	outPath := filepath.Join(dir, "output.png")
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return backend.Result{}, fmt.Errorf("write input: %w", err)
	}

	cmd := exec.CommandContext(ctx, u.cfg.BinaryPath, Args(u.cfg, inPath, outPath, req.TileSize, modelName)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return backend.Result{}, fmt.Errorf("ncnn process: %w", ctx.Err())
		}
		return backend.Result{}, fmt.Errorf("ncnn process: %w: %s", err, lastLine(out))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return backend.Result{}, fmt.Errorf("read output: %w", err)
	}

	if req.Scale != networkScale {
		data, err = u.postResample(data, req)
		if err != nil {
			return backend.Result{}, err
		}
	}

	w, h, _, err := imaging.Dimensions(data)
	if err != nil {
		return backend.Result{}, fmt.Errorf("inspect output: %w", err)
	}
	return backend.Result{Image: data, Width: w, Height: h}, nil
}

// postResample corrects 2x and 8x requests: the network always produced 4x,
// so scale the result down or up to the requested factor.
func (u *Upscaler) postResample(data []byte, req backend.Request) ([]byte, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode network output: %w", err)
	}
	resized := imaging.Resample(img, req.Width*req.Scale, req.Height*req.Scale)
	return imaging.Encode(resized, model.FormatPNG)
}

// lastLine extracts the final non-empty line of process output for error
// messages.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
