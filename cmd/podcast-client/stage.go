package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/dustin/go-humanize"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

type stagedDocument struct {
	File string `json:"file"`
	Size uint64 `json:"size"`
	Ref  string `json:"ref"`
}

func newStageCommand(ctx *commandContext) *cobra.Command {
	var (
		natsURL string
		bucket  string
	)

	cmd := &cobra.Command{
		Use:   "stage <file...>",
		Short: "Upload local documents into the documents object store",
		Long:  "Upload documents so the service can read them, printing the object:// reference for each.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			natsConnection, err := nats.Connect(natsURL, nats.Name("podcast-client"), nats.Timeout(ctx.timeout))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
			}
			defer natsConnection.Close()

			jetstreamContext, err := natsConnection.JetStream()
			if err != nil {
				return fmt.Errorf("failed to get JetStream context: %w", err)
			}

			store, err := objectstore.New(jetstreamContext, bucket)
			if err != nil {
				return err
			}

			staged := make([]stagedDocument, 0, len(args))

			for _, path := range args {
				data, readErr := os.ReadFile(path)
				if readErr != nil {
					return fmt.Errorf("failed to read %s: %w", path, readErr)
				}

				ref, stageErr := store.Stage(cmd.Context(), filepath.Base(path), data)
				if stageErr != nil {
					return stageErr
				}

				staged = append(staged, stagedDocument{File: path, Size: uint64(len(data)), Ref: ref})
			}

			return renderStaged(cmd, ctx.jsonOut, staged)
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", config.DefaultNATSURL, "NATS server URL")
	cmd.Flags().StringVar(&bucket, "bucket", config.DefaultDocumentsBucket, "Documents object store bucket")

	return cmd
}

func renderStaged(cmd *cobra.Command, jsonOut bool, staged []stagedDocument) error {
	if jsonOut || !isTerminal(cmd.OutOrStdout()) {
		return writeJSON(cmd, staged)
	}

	rows := make([][]string, 0, len(staged))
	for _, doc := range staged {
		rows = append(rows, []string{doc.File, humanize.Bytes(doc.Size), doc.Ref})
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Size", "Ref"}, rows))

	return err
}
