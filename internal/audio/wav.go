package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// DecodeWAV reads a PCM WAV stream, downmixes it to mono and scales the
// samples to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (Signal, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Signal{}, ErrUnsupportedFormat
	}
	if d.WavAudioFormat != wavFormatPCM {
		return Signal{}, fmt.Errorf("%w: wav format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Signal{}, fmt.Errorf("read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Signal{}, ErrInvalidSampleRate
	}

	channels := max(1, buf.Format.NumChannels)
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Signal{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	// 8-bit PCM is unsigned with silence at 128.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]-offset) / scale
		}
		samples[i] = clip(sum / float32(channels))
	}

	return Signal{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// EncodeWAV writes sig as 16-bit mono PCM WAV.
func EncodeWAV(w io.WriteSeeker, sig Signal) error {
	if sig.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	data := make([]int, len(sig.Samples))
	for i, v := range sig.Samples {
		data[i] = int(clip(v) * 32767)
	}

	enc := wav.NewEncoder(w, sig.SampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sig.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
