package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maauso/coachscribe/internal/job"
)

func newBatchCmd(factory serviceFactory) *cobra.Command {
	var (
		wav, out, lang string
		thr            float64
		maxSpeakers    int
		noWords        bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Diarize and transcribe a session WAV into a transcript file",
		Long: "Diarize and transcribe a session WAV. The transcript is written as JSON,\n" +
			"or as YAML when --out ends in .yaml or .yml.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := factory()
			if err != nil {
				return err
			}

			in := job.TranscribeInput{
				AudioPath:         wav,
				Language:          lang,
				MaxSpeakers:       maxSpeakers,
				UseWordTimestamps: !noWords,
			}
			if cmd.Flags().Changed("thr") {
				in.CoachThreshold = &thr
			}

			result, err := svc.Transcribe(cmd.Context(), in)
			if err != nil {
				return err
			}

			cmd.Printf("[batch] %s: %d utterances in %.2fs\n", wav, len(result.Utterances), result.Metrics.ProcessingSec)
			if err := writeResult(out, result); err != nil {
				return err
			}
			cmd.Printf("[batch] wrote %s\n", out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&wav, "wav", "", "path to the session WAV")
	f.StringVar(&out, "out", "", "output path (.json, .yaml or .yml)")
	f.StringVar(&lang, "lang", "", "language code (default: LANGUAGE)")
	f.Float64Var(&thr, "thr", 0, "coach similarity threshold, overrides COACH_THRESHOLD")
	f.IntVar(&maxSpeakers, "max-speakers", 0, "max non-coach speakers, overrides MAX_SPEAKERS")
	f.BoolVar(&noWords, "no-words", false, "disable word timestamps")
	_ = cmd.MarkFlagRequired("wav")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// writeResult writes the transcript to path, choosing the format by extension.
func writeResult(path string, result *job.Result) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		data = b
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		data = buf.Bytes()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
