package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/infrastructure/messaging"
	"meeting-rag-api/internal/wire"
)

var (
	ensureRecreate bool

	indexMeetingID  string
	indexTranscript string
	indexSummary    string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector collection and index meetings",
}

var indexEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the collection if missing or rebuild it on a dimension mismatch",
	Long: `Makes the configured collection usable at the configured embedding dimension.
A collection with a different dimension is dropped and recreated, losing its data.
--recreate drops and recreates it unconditionally.`,
	Args: cobra.NoArgs,
	RunE: runIndexEnsure,
}

var indexMeetingCmd = &cobra.Command{
	Use:   "meeting",
	Short: "Index one meeting synchronously",
	Args:  cobra.NoArgs,
	RunE:  runIndexMeeting,
}

func init() {
	indexEnsureCmd.Flags().BoolVar(&ensureRecreate, "recreate", false, "drop and recreate the collection")

	addTriggerFlags(indexMeetingCmd, &indexMeetingID, &indexTranscript, &indexSummary)

	indexCmd.AddCommand(indexEnsureCmd, indexMeetingCmd)
	rootCmd.AddCommand(indexCmd)
}

func addTriggerFlags(cmd *cobra.Command, meetingID, transcript, summary *string) {
	cmd.Flags().StringVar(meetingID, "meeting-id", "", "meeting identifier")
	cmd.Flags().StringVar(transcript, "transcript", "", "transcript locator (s3://bucket/key or key)")
	cmd.Flags().StringVar(summary, "summary", "", "summary locator (s3://bucket/key or key)")
	_ = cmd.MarkFlagRequired("meeting-id")
}

func runIndexEnsure(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	idx, cleanup, err := wire.InitializeIndexing(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	collection, dim := cfg.Vector.Milvus.Collection, cfg.Embedding.Dimension
	if ensureRecreate {
		err = idx.Manager.Recreate(ctx, collection, dim)
	} else {
		err = idx.Manager.EnsureReady(ctx, collection, dim)
	}
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	cmd.Printf("Collection %s ready (dim=%d)\n", collection, dim)
	return nil
}

func runIndexMeeting(cmd *cobra.Command, _ []string) error {
	trigger := &messaging.IndexTrigger{
		MeetingID:         indexMeetingID,
		TranscriptLocator: indexTranscript,
		SummaryLocator:    indexSummary,
	}
	if err := trigger.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	idx, cleanup, err := wire.InitializeIndexing(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := idx.Handler.Index(ctx, trigger)
	if res != nil {
		printIndexResult(cmd, res)
	}
	return err
}

func printIndexResult(cmd *cobra.Command, res *retrieval.IndexResult) {
	cmd.Printf("Meeting %s: %d documents written, %d failed\n", res.MeetingID, res.Written, len(res.Failures))
	for _, f := range res.Failures {
		cmd.Printf("  %s[%d]: %v\n", f.ContentType, f.ChunkIndex, f.Err)
	}
}
