package main

import (
	"github.com/spf13/cobra"

	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/internal/wire"
)

var (
	enqueueMeetingID  string
	enqueueTranscript string
	enqueueSummary    string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Publish an index trigger for the index-worker",
	Args:  cobra.NoArgs,
	RunE:  runEnqueue,
}

func init() {
	addTriggerFlags(enqueueCmd, &enqueueMeetingID, &enqueueTranscript, &enqueueSummary)
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	trigger := &messaging.IndexTrigger{
		MeetingID:         enqueueMeetingID,
		TranscriptLocator: enqueueTranscript,
		SummaryLocator:    enqueueSummary,
	}
	if err := trigger.Validate(); err != nil {
		return err
	}

	producer, cleanup, err := wire.InitializeProducer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	streamID, err := producer.PublishIndexTrigger(cmd.Context(), trigger)
	if err != nil {
		return err
	}
	cmd.Printf("Enqueued meeting %s (stream id %s)\n", trigger.MeetingID, streamID)
	return nil
}
