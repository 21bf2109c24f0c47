package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, sig Signal) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer func() { _ = f.Close() }()

	if err := EncodeWAV(f, sig); err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	return path
}

func sine(freq float64, seconds float64, rate int) Signal {
	n := int(seconds * float64(rate))
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return Signal{Samples: s, SampleRate: rate}
}

func TestSignal_DurationAndSlice(t *testing.T) {
	sig := Signal{Samples: make([]float32, 16000), SampleRate: 16000}
	if sig.Duration() != 1.0 {
		t.Errorf("Duration() = %v, want 1", sig.Duration())
	}

	if got := len(sig.Slice(0.25, 0.5)); got != 4000 {
		t.Errorf("Slice(0.25, 0.5) has %d samples, want 4000", got)
	}
	if got := len(sig.Slice(0.9, 5)); got != 1600 {
		t.Errorf("Slice past the end has %d samples, want 1600", got)
	}
	if got := sig.Slice(-1, 0); got != nil {
		t.Errorf("Slice before the start = %v, want nil", got)
	}
	if got := sig.Slice(0.5, 0.5); got != nil {
		t.Errorf("empty slice = %v, want nil", got)
	}
	if (Signal{}).Duration() != 0 {
		t.Error("zero signal must have zero duration")
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := sine(220, 0.5, 16000)
	path := writeWAV(t, in)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	out, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("got %d samples, want %d", len(out.Samples), len(in.Samples))
	}
	for i := range in.Samples {
		if math.Abs(float64(in.Samples[i]-out.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAV_DownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	// left is +0.5, right is -0.25 full scale
	data := make([]int, 0, 200)
	for i := 0; i < 100; i++ {
		data = append(data, 16384, -8192)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	sig, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if len(sig.Samples) != 100 {
		t.Fatalf("got %d mono samples, want 100", len(sig.Samples))
	}
	if math.Abs(float64(sig.Samples[0])-0.125) > 1e-4 {
		t.Errorf("downmixed sample = %v, want 0.125", sig.Samples[0])
	}
}

func TestDecodeWAV_EightBitIsUnsigned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm8.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	// 128 is silence, 192 is +0.5 and 64 is -0.5 full scale
	data := make([]int, 1600)
	for i := range data {
		data[i] = 128
	}
	data[800], data[801] = 192, 64
	enc := wav.NewEncoder(f, 16000, 8, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           data,
		SourceBitDepth: 8,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	sig, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if len(sig.Samples) != 1600 {
		t.Fatalf("got %d samples, want 1600", len(sig.Samples))
	}
	if sig.Samples[0] != 0 || sig.Samples[1599] != 0 {
		t.Errorf("silence decoded as %v / %v, want 0", sig.Samples[0], sig.Samples[1599])
	}
	if math.Abs(float64(sig.Samples[800])-0.5) > 1e-6 {
		t.Errorf("sample 800 = %v, want 0.5", sig.Samples[800])
	}
	if math.Abs(float64(sig.Samples[801])+0.5) > 1e-6 {
		t.Errorf("sample 801 = %v, want -0.5", sig.Samples[801])
	}
}

func TestDecodeWAV_RejectsNonWAV(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("definitely not a RIFF file")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestEncodeWAV_InvalidSampleRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if err := EncodeWAV(f, Signal{Samples: []float32{0}}); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("expected ErrInvalidSampleRate, got %v", err)
	}
}

func TestResample(t *testing.T) {
	t.Run("halves the rate", func(t *testing.T) {
		in := Signal{Samples: []float32{0, 0.2, 0.4, 0.6, 0.8, 1.0}, SampleRate: 32000}
		out, err := Resample(in, 16000)
		if err != nil {
			t.Fatal(err)
		}
		want := []float32{0, 0.4, 0.8}
		if len(out.Samples) != len(want) {
			t.Fatalf("got %d samples, want %d", len(out.Samples), len(want))
		}
		for i := range want {
			if math.Abs(float64(out.Samples[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %v, want %v", i, out.Samples[i], want[i])
			}
		}
	})

	t.Run("doubles the rate with interpolation", func(t *testing.T) {
		in := Signal{Samples: []float32{0, 1}, SampleRate: 8000}
		out, err := Resample(in, 16000)
		if err != nil {
			t.Fatal(err)
		}
		want := []float32{0, 0.5, 1, 1}
		if len(out.Samples) != len(want) {
			t.Fatalf("got %v, want %v", out.Samples, want)
		}
		for i := range want {
			if math.Abs(float64(out.Samples[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %v, want %v", i, out.Samples[i], want[i])
			}
		}
	})

	t.Run("same rate is unchanged", func(t *testing.T) {
		in := sine(100, 0.1, 16000)
		out, err := Resample(in, 16000)
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Samples) != len(in.Samples) {
			t.Errorf("length changed: %d != %d", len(out.Samples), len(in.Samples))
		}
	})

	t.Run("invalid rate", func(t *testing.T) {
		if _, err := Resample(Signal{Samples: []float32{1}, SampleRate: 16000}, 0); !errors.Is(err, ErrInvalidSampleRate) {
			t.Errorf("expected ErrInvalidSampleRate, got %v", err)
		}
	})
}

// copyConverter stands in for ffmpeg by copying a prepared WAV.
type copyConverter struct {
	source string
	rate   int
	calls  int
}

func (c *copyConverter) Convert(_ context.Context, _, outputPath string, sampleRate int) error {
	c.calls++
	c.rate = sampleRate
	data, err := os.ReadFile(c.source)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o600)
}

func TestLoader_ResamplesWithoutConverter(t *testing.T) {
	path := writeWAV(t, sine(200, 1, 8000))

	sig, err := NewLoader(16000).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sig.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", sig.SampleRate)
	}
	if len(sig.Samples) != 16000 {
		t.Errorf("got %d samples, want 16000", len(sig.Samples))
	}
}

func TestLoader_UsesConverter(t *testing.T) {
	prepared := writeWAV(t, sine(200, 0.5, 16000))
	conv := &copyConverter{source: prepared}
	tempDir := t.TempDir()

	loader := NewLoader(16000, WithConverter(conv), WithTempDir(tempDir))
	sig, err := loader.Load(context.Background(), "/uploads/session.m4a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if conv.calls != 1 || conv.rate != 16000 {
		t.Errorf("converter called %d times at %d Hz", conv.calls, conv.rate)
	}
	if sig.Duration() != 0.5 {
		t.Errorf("Duration() = %v, want 0.5", sig.Duration())
	}

	left, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("intermediate files left behind: %v", left)
	}
}

func TestLoader_RejectsNonWAVWithoutConverter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewLoader(0).Load(context.Background(), path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
