package main

import (
	"fmt"
	"os"

	"github.com/book-expert/podcast-service/internal/job"
	"github.com/spf13/cobra"
)

type submitFlags struct {
	kind             string
	profile          string
	textModel        string
	audioModel       string
	speaker1Voice    string
	speaker2Voice    string
	apiKey           string
	transcriptFile   string
	feedback         string
	originalTextFile string
	name             string
	tags             []string
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit [document...]",
		Short: "Submit a podcast or dialogue job",
		Long: "Submit documents for podcast generation. Documents are local paths on the service host, " +
			"http(s) URLs or object:// references returned by the stage command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := job.Kind(flags.kind)
			if !kind.Valid() {
				return fmt.Errorf("%w: %q", job.ErrUnknownKind, flags.kind)
			}

			params, err := flags.params(args)
			if err != nil {
				return err
			}

			taskID, err := ctx.api().submit(cmd.Context(), kind, params)
			if err != nil {
				return err
			}

			if ctx.jsonOut {
				return writeJSON(cmd, map[string]string{"task_id": taskID})
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), taskID)

			return err
		},
	}

	cmd.Flags().StringVar(&flags.kind, "kind", string(job.KindPodcast), "Job kind: podcast or dialogue")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "Instruction profile")
	cmd.Flags().StringVar(&flags.textModel, "text-model", "", "Dialogue model override")
	cmd.Flags().StringVar(&flags.audioModel, "audio-model", "", "Speech model override")
	cmd.Flags().StringVar(&flags.speaker1Voice, "speaker-1-voice", "", "Voice of the first speaker")
	cmd.Flags().StringVar(&flags.speaker2Voice, "speaker-2-voice", "", "Voice of the second speaker")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "API key for the model and speech services")
	cmd.Flags().StringVar(&flags.transcriptFile, "transcript-file", "", "Edited transcript to revise")
	cmd.Flags().StringVar(&flags.feedback, "feedback", "", "Feedback for the revision")
	cmd.Flags().StringVar(&flags.originalTextFile, "original-text-file", "", "Use this text instead of extracting the documents")
	cmd.Flags().StringVar(&flags.name, "name", "", "Podcast name recorded in the library")
	cmd.Flags().StringSliceVar(&flags.tags, "tag", nil, "Content tag (repeatable)")

	return cmd
}

func (f submitFlags) params(files []string) (job.Params, error) {
	transcript, err := readOptionalFile(f.transcriptFile)
	if err != nil {
		return job.Params{}, err
	}

	originalText, err := readOptionalFile(f.originalTextFile)
	if err != nil {
		return job.Params{}, err
	}

	if files == nil {
		files = []string{}
	}

	return job.Params{
		Files:               files,
		Profile:             f.profile,
		TextModel:           f.textModel,
		AudioModel:          f.audioModel,
		Speaker1Voice:       f.speaker1Voice,
		Speaker2Voice:       f.speaker2Voice,
		APIKey:              f.apiKey,
		EditedTranscript:    transcript,
		EditedTranscriptRef: "",
		UserFeedback:        f.feedback,
		OriginalText:        originalText,
		OriginalTextRef:     "",
		PodcastName:         f.name,
		ContentTags:         f.tags,
	}, nil
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return string(data), nil
}
