package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/core/domain"
)

var (
	queryK    int
	queryTier string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Build the model prompt for a question",
	Long: `Builds the prompt for a question about a trip. The prompt combines the
most relevant document passages with the trip's current structured data
(calendar, expenses, polls, places, chat, roster, announcements and
preferences) and ends with the output contract.

Each query counts against the caller's daily quota for the trip.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Show the top matching document passages",
	Long: `Ranks the trip's document chunks by a weighted blend of semantic and
keyword similarity. Does not count against the quota.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's query usage for the caller",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "number of passages (0 = configured default)")
	queryCmd.Flags().StringVar(&queryTier, "tier", "", "override the caller's configured tier (operator use)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	retrieveCmd.Flags().IntVarP(&queryK, "k", "k", 0, "number of passages (0 = configured default)")
	retrieveCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	usageCmd.Flags().StringVar(&queryTier, "tier", "", "override the caller's configured tier (operator use)")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(usageCmd)
}

// chunkView is the JSON form of a retrieved chunk.
type chunkView struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Semantic   float64 `json:"semantic"`
	Lexical    float64 `json:"lexical"`
}

type queryView struct {
	Prompt    string                  `json:"prompt"`
	Chunks    []chunkView             `json:"chunks"`
	Record    *domain.AggregateRecord `json:"record,omitempty"`
	Degraded  bool                    `json:"degraded"`
	Remaining int                     `json:"remaining"`
}

func toChunkViews(chunks []domain.RetrievedChunk) []chunkView {
	out := make([]chunkView, 0, len(chunks))
	for i := range chunks {
		out = append(out, chunkView{
			ChunkID:    chunks[i].Chunk.ID,
			DocumentID: chunks[i].Document.ID,
			Title:      chunks[i].Document.Title,
			Text:       chunks[i].Chunk.Text,
			Score:      chunks[i].Score,
			Semantic:   chunks[i].SemanticScore,
			Lexical:    chunks[i].LexicalScore,
		})
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	if engine == nil || engine.Context == nil {
		return errors.New("context service not configured")
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	res, err := engine.Context.BuildPrompt(cmd.Context(), domain.QueryRequest{
		TripID:   trip,
		CallerID: caller,
		Query:    args[0],
		Tier:     domain.Tier(queryTier),
		K:        queryK,
	})
	if err != nil {
		qe := domain.ToQueryError(err)
		if queryJSON {
			if perr := printJSON(cmd, qe); perr != nil {
				return perr
			}
		}
		return qe
	}

	if queryJSON {
		return printJSON(cmd, queryView{
			Prompt:    res.Prompt,
			Chunks:    toChunkViews(res.Chunks),
			Record:    res.Record,
			Degraded:  res.Degraded,
			Remaining: res.Usage.Remaining,
		})
	}

	cmd.Println(res.Prompt)
	if res.Degraded {
		cmd.PrintErrln("warning: some trip context was unavailable")
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if engine == nil || engine.Retriever == nil {
		return errors.New("retriever not configured")
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	chunks, err := engine.Retriever.Retrieve(cmd.Context(), trip, caller, args[0], queryK)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, toChunkViews(chunks))
	}

	if len(chunks) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range chunks {
		title := chunks[i].Document.Title
		if title == "" {
			title = chunks[i].Document.ID
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, chunks[i].Score)
		cmd.Printf("      %s\n", snippet(chunks[i].Chunk.Text, 160))
		cmd.Println()
	}
	return nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	if engine == nil || engine.Limiter == nil {
		return errors.New("usage limiter not configured")
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	u, err := engine.Limiter.Usage(cmd.Context(), caller, trip, domain.Tier(queryTier))
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	if u.Limit < 0 {
		cmd.Printf("%s has used %d queries today on trip %s (unlimited)\n", caller, u.Count, trip)
		return nil
	}
	cmd.Printf("%s has used %d of %d queries today on trip %s (%d remaining)\n",
		caller, u.Count, u.Limit, trip, u.Remaining)
	return nil
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
