package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/adapters/driving/watcher"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add documents to a trip's knowledge base",
	Long: `Add documents to a trip's knowledge base.

Documents are chunked, embedded and stored. A document is only searchable
once every chunk has been embedded.`,
}

var ingestTextCmd = &cobra.Command{
	Use:   "text [text]",
	Short: "Ingest text given as an argument or on stdin",
	Long:  `Ingest text as a manual document. Pass "-" or no argument to read stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngestText,
}

var ingestFileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Ingest a local file as an upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestFile,
}

var ingestLinkCmd = &cobra.Command{
	Use:   "link [url]",
	Short: "Fetch a web page and ingest its readable text",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestLink,
}

var ingestWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files dropped into a directory",
	Long: `Watch a directory and ingest every file written to it as an upload.

Runs until interrupted. Deleting a file does not delete its document.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestWatch,
}

var (
	ingestTitle    string
	watchExisting  bool
	watchDebounce  time.Duration
	ingestReadFrom io.Reader = os.Stdin
)

func init() {
	ingestTextCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestWatchCmd.Flags().BoolVar(&watchExisting, "existing", false, "ingest files already in the directory")
	ingestWatchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is ingested")

	ingestCmd.AddCommand(ingestTextCmd)
	ingestCmd.AddCommand(ingestFileCmd)
	ingestCmd.AddCommand(ingestLinkCmd)
	ingestCmd.AddCommand(ingestWatchCmd)
	rootCmd.AddCommand(ingestCmd)
}

func ingestionService() (driving.IngestionService, error) {
	if engine == nil || engine.Ingestion == nil {
		return nil, errors.New("ingestion service not configured")
	}
	return engine.Ingestion, nil
}

func runIngestText(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	var text string
	if len(args) == 1 && args[0] != "-" {
		text = args[0]
	} else {
		data, err := io.ReadAll(ingestReadFrom)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	doc, err := svc.Ingest(cmd.Context(), driving.IngestRequest{
		TripID:     trip,
		CallerID:   caller,
		Title:      ingestTitle,
		SourceType: domain.SourceTypeManual,
		RawText:    text,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printIngested(cmd, doc)
	return nil
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	doc, err := svc.IngestFile(cmd.Context(), trip, caller, args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printIngested(cmd, doc)
	return nil
}

func runIngestLink(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	doc, err := svc.IngestLink(cmd.Context(), trip, caller, args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printIngested(cmd, doc)
	return nil
}

func runIngestWatch(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	w, err := watcher.New(svc, watcher.Config{
		Dir:          args[0],
		TripID:       trip,
		CallerID:     caller,
		Debounce:     watchDebounce,
		ScanExisting: watchExisting,
		OnIngested: func(path string, doc *domain.Document, err error) {
			if err != nil {
				cmd.PrintErrf("  failed  %s: %v\n", path, err)
				return
			}
			cmd.Printf("  ingested %s -> %s\n", path, doc.ID)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s for trip %s (Ctrl+C to stop)\n", args[0], trip)
	return w.Run(ctx)
}

func printIngested(cmd *cobra.Command, doc *domain.Document) {
	title := doc.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	cmd.Printf("Document %s ingested.\n", doc.ID)
	cmd.Printf("  Title:  %s\n", title)
	cmd.Printf("  Source: %s\n", doc.SourceType)
	cmd.Printf("  Status: %s\n", doc.Status)
}
