package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
)

var (
	queryCollection  string
	queryThreshold   float64
	queryHistory     string
	queryJSON        bool
	queryNoNeighbors bool
)

var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Search stored chunks by similarity",
	Long: `Expands the prompt with the query model, embeds it and scans stored
chunks for cosine similarity above the threshold. Hits come back with
their immediate neighbours for context unless disabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryCollection, "collection", "c", "", "restrict the search to one collection")
	queryCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", 0, "minimum similarity (default 0.45)")
	queryCmd.Flags().StringVar(&queryHistory, "history", "", "conversation context for query expansion")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().BoolVar(&queryNoNeighbors, "no-neighbors", false, "return direct hits only")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	opts := driving.QueryOptions{
		Collection:      queryCollection,
		Threshold:       queryThreshold,
		History:         queryHistory,
		ExpandNeighbors: !queryNoNeighbors,
	}

	resp, err := queryService.Query(context.Background(), args[0], opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputQueryJSON(cmd, resp)
	}
	return outputQueryText(cmd, resp)
}

func outputQueryJSON(cmd *cobra.Command, resp *driving.QueryResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryText(cmd *cobra.Command, resp *driving.QueryResponse) error {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results (threshold %.2f):\n\n", resp.Threshold)
	for i, r := range resp.Results {
		score := "context"
		if r.Similarity != nil {
			score = fmt.Sprintf("%.2f", *r.Similarity)
		}
		cmd.Printf("  [%d] %s #%d (%s)\n", i+1, r.SourceName, r.ChunkIndex, score)
		cmd.Printf("      Collection: %s\n", r.Collection)
		cmd.Printf("      %s\n", snippet(r.Text, 200))
		cmd.Println()
	}
	return nil
}

// snippet returns the first n characters of text on one line.
func snippet(text string, n int) string {
	flat := make([]rune, 0, n)
	for _, r := range text {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		flat = append(flat, r)
		if len(flat) >= n {
			return string(flat) + "..."
		}
	}
	return string(flat)
}
