package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/coachscribe/internal/asr"
	"github.com/maauso/coachscribe/internal/transcript"
)

// DefaultASRModel is the Whisper model served by default.
const DefaultASRModel = "large-v3"

// ASRClient calls a faster-whisper transcription server.
type ASRClient struct {
	*client
	model string
}

// NewASRClient creates a client for the server at baseURL serving model.
func NewASRClient(baseURL, model string, opts ...ClientOption) (*ASRClient, error) {
	// long recordings take minutes to transcribe
	c, err := newClient(baseURL, 15*time.Minute, opts...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultASRModel
	}
	return &ASRClient{client: c, model: model}, nil
}

// Model implements asr.Transcriber.
func (c *ASRClient) Model() string {
	return "faster-whisper " + c.model
}

// Transcribe implements asr.Transcriber. The recording is uploaded as a
// multipart form together with the language and word timestamp flag.
func (c *ASRClient) Transcribe(ctx context.Context, wavPath string, opts asr.Options) ([]transcript.Segment, error) {
	data, err := os.ReadFile(wavPath) // #nosec G304 - path comes from storage
	if err != nil {
		return nil, fmt.Errorf("inference: read audio: %w", err)
	}

	language := opts.Language
	if language == "" {
		language = asr.DefaultLanguage
	}

	body, contentType, err := transcribeForm(filepath.Base(wavPath), data, map[string]string{
		"language":        language,
		"word_timestamps": strconv.FormatBool(opts.WordTimestamps),
		"model":           c.model,
	})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/transcribe"
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}

	var resp transcribeResponse
	if err := c.doWithRetry(ctx, build, &resp); err != nil {
		return nil, err
	}
	return toSegments(resp.Segments), nil
}

// transcribeForm encodes the upload as multipart/form-data.
func transcribeForm(fileName string, data []byte, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("inference: create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, "", fmt.Errorf("inference: write form file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("inference: write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("inference: close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func toSegments(wire []segmentWire) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(wire))
	for _, s := range wire {
		seg := transcript.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, transcript.Word{
				Text:  strings.TrimSpace(w.Word),
				Start: w.Start,
				End:   w.End,
			})
		}
		out = append(out, seg)
	}
	return out
}

// Verify interface implementation at compile time.
var _ asr.Transcriber = (*ASRClient)(nil)
