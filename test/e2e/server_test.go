package e2e

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 20 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "upscaled-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "upscaled")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/upscaled")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

func startServer(t *testing.T, binary string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		"UPSCALED_LISTEN_ADDR="+addr,
		"UPSCALED_DB_PATH="+dbPath,
		"UPSCALED_LOG_LEVEL=info",
		// Point the sidecar probe at a port nothing listens on so startup
		// degrades to the classical backend quickly.
		"UPSCALED_ESRGAN_URL=http://127.0.0.1:1",
		"UPSCALED_NCNN_BINARY="+filepath.Join(t.TempDir(), "missing"),
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestBinaryBuildsAndStarts(t *testing.T) {
	binary := getBinary(t)
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatal("binary does not exist after build")
	}

	sp := startServer(t, binary)
	if sp == nil {
		t.Fatal("server did not start")
	}
}

func TestHealthDegradedWithoutAccelerators(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status            string          `json:"status"`
		AvailableBackends map[string]bool `json:"available_backends"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if !body.AvailableBackends["classical"] {
		t.Errorf("classical should be available: %v", body.AvailableBackends)
	}
	if body.AvailableBackends["realesrgan"] || body.AvailableBackends["ncnn-vulkan"] {
		t.Errorf("accelerated backends should be down: %v", body.AvailableBackends)
	}
}

func TestUpscaleRoundTrip(t *testing.T) {
	sp := startServer(t, getBinary(t))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "input.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(testPNG(t, 40, 30))
	mw.WriteField("scale", "2")
	mw.Close()

	resp, err := http.Post(sp.url+"/upscale", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /upscale: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Success      bool   `json:"success"`
		UpscaledSize string `json:"upscaled_size"`
		Backend      string `json:"backend"`
		Base64Image  string `json:"base64_image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !out.Success || out.UpscaledSize != "80x60" || out.Backend != "classical" {
		t.Errorf("success=%v size=%q backend=%q, want true 80x60 classical", out.Success, out.UpscaledSize, out.Backend)
	}

	img, err := base64.StdEncoding.DecodeString(out.Base64Image)
	if err != nil {
		t.Fatalf("base64_image not decodable: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("output image not decodable: %v", err)
	}
	if cfg.Width != 80 || cfg.Height != 60 {
		t.Errorf("output %dx%d, want 80x60", cfg.Width, cfg.Height)
	}
}

func TestMetricsExposed(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "upscaled_http_requests_total") {
		t.Error("metrics output missing upscaled_http_requests_total")
	}
}
