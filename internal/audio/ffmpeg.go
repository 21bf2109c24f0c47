package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Converter normalises an arbitrary recording into a mono PCM WAV file.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string, sampleRate int) error
}

// FFmpegConverter implements Converter using the ffmpeg CLI.
type FFmpegConverter struct {
	ffmpegPath string
}

// NewFFmpegConverter creates a new FFmpegConverter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegConverter(ffmpegPath string) *FFmpegConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegConverter{ffmpegPath: ffmpegPath}
}

// Path returns the ffmpeg binary used.
func (c *FFmpegConverter) Path() string {
	return c.ffmpegPath
}

// convertArgs builds the ffmpeg arguments for a mono 16-bit conversion.
func convertArgs(inputPath, outputPath string, sampleRate int) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// Convert writes inputPath to outputPath as mono 16-bit PCM at sampleRate.
func (c *FFmpegConverter) Convert(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, convertArgs(inputPath, outputPath, sampleRate)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v, stderr: %s", ErrFFmpegFailed, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Converter = (*FFmpegConverter)(nil)
