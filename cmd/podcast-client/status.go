package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/podcast-service/internal/server"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const defaultPollInterval = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.api()

			for {
				status, err := client.status(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if !wait || status.State.Terminal() {
					return renderStatus(cmd, ctx.jsonOut, status)
				}

				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval with --wait")

	return cmd
}

func renderStatus(cmd *cobra.Command, jsonOut bool, status server.StatusResponse) error {
	if jsonOut || !isTerminal(cmd.OutOrStdout()) {
		return writeJSON(cmd, status)
	}

	rows := [][]string{
		{"Task", status.ID},
		{"Status", status.StatusLabel},
		{"Kind", string(status.Kind)},
	}

	if !status.CreatedAt.IsZero() {
		rows = append(rows, []string{"Submitted", humanize.Time(status.CreatedAt)})
	}

	if status.ElapsedSeconds != nil {
		elapsed := time.Duration(*status.ElapsedSeconds * float64(time.Second)).Round(time.Second)
		rows = append(rows, []string{"Elapsed", elapsed.String()})
	}

	if status.Result != nil {
		rows = appendIfSet(rows, "Audio URL", status.Result.AudioURL)
		rows = appendIfSet(rows, "CDN URL", status.Result.CDNURL)
		rows = appendIfSet(rows, "Object key", status.Result.ObjectKey)

		if status.Result.LibraryID != 0 {
			rows = append(rows, []string{"Library ID", strconv.FormatInt(status.Result.LibraryID, 10)})
		}

		if status.Result.Dialogue != nil {
			rows = append(rows, []string{"Lines", strconv.Itoa(len(status.Result.Dialogue.Lines))})
		}

		rows = appendIfSet(rows, "Transcript", status.Result.TranscriptRef)
		rows = appendIfSet(rows, "Dialogue", status.Result.DialogueRef)
		rows = appendIfSet(rows, "Source text", status.Result.OriginalTextRef)

		if status.Result.Characters > 0 {
			rows = append(rows, []string{"Characters", humanize.Comma(int64(status.Result.Characters))})
		}
	}

	rows = appendIfSet(rows, "Error", status.Error)

	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))

	return err
}

func appendIfSet(rows [][]string, label, value string) [][]string {
	if value == "" {
		return rows
	}

	return append(rows, []string{label, value})
}
