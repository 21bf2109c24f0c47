package main

import (
	"github.com/spf13/cobra"

	"github.com/maauso/coachscribe/internal/job"
)

func newEnrollCmd(factory serviceFactory) *cobra.Command {
	var wav, name string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a speaker from a single-speaker reference WAV (30-60s)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := factory()
			if err != nil {
				return err
			}

			out, err := svc.Enroll(cmd.Context(), job.EnrollInput{AudioPath: wav, SpeakerName: name})
			if err != nil {
				return err
			}

			cmd.Printf("[enroll] saved embedding as '%s' (dim=%d) from %s duration=%.2fs\n",
				out.Speaker, out.EmbeddingDim, wav, out.DurationSec)
			return nil
		},
	}

	cmd.Flags().StringVar(&wav, "wav", "", "path to the reference WAV")
	cmd.Flags().StringVar(&name, "name", "", "speaker name key (default: the coach profile name)")
	_ = cmd.MarkFlagRequired("wav")
	return cmd
}
