package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/interfaces/http/dto"
	einoobs "meeting-rag-api/internal/observability/eino"
	"meeting-rag-api/internal/wire"
)

var (
	queryMeetingID string
	queryLimit     int
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question over indexed meetings",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryMeetingID, "meeting-id", "", "restrict retrieval to one meeting")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "number of sources (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the /query response body as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	einoobs.Init()

	ctx := cmd.Context()
	engine, cleanup, err := wire.InitializeQueryEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := engine.Answer(ctx, retrieval.Query{Text: args[0], MeetingID: queryMeetingID, K: queryLimit})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	resp := dto.ToQueryResponse(args[0], answer)
	if queryJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printAnswer(cmd, resp)
	return nil
}

func printAnswer(cmd *cobra.Command, resp *dto.QueryResponse) {
	cmd.Println(resp.Response)
	if len(resp.Sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, s := range resp.Sources {
		cmd.Printf("  [%d] %s/%s (%.2f)\n", i+1, s.MeetingID, s.ContentType, s.Score)
		cmd.Printf("      %s\n", s.Snippet)
	}
}
