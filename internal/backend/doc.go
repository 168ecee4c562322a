// Package backend defines the upscaling backend interface and the immutable
// registry built from startup probes.
//
// Three backends exist: the Real-ESRGAN inference sidecar (highest quality,
// needs a reachable sidecar process), the realesrgan-ncnn-vulkan subprocess
// (high quality, needs the binary and model files on disk), and the pure-Go
// classical resampler (medium quality, no external dependency, always
// available). Each backend is probed exactly once at process start; the
// resulting registry is read-only for the process lifetime.
package backend
