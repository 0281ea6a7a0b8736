package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage trip documents",
	Long:  `List, view, delete, or purge the documents of a trip.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents for a trip",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long:  `Soft-deletes a document. Its chunks are no longer retrieved.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove failed documents",
	Long:  `Hard-deletes documents whose ingestion failed, together with their chunks.`,
	Args:  cobra.NoArgs,
	RunE:  runDocumentPurge,
}

var (
	listStatus     string
	listAll        bool
	purgeOlderThan time.Duration
)

func init() {
	documentListCmd.Flags().StringVar(&listStatus, "status", "", "only show documents with this status")
	documentListCmd.Flags().BoolVar(&listAll, "all", false, "include deleted documents")
	documentPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 24*time.Hour, "minimum age of purged documents")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentPurgeCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	filter := domain.DocumentFilter{Status: domain.DocumentStatus(listStatus), IncludeDeleted: listAll}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, listStatus)
	}

	docs, err := svc.List(cmd.Context(), trip, caller, filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Printf("No documents found for trip: %s\n", trip)
		return nil
	}

	cmd.Printf("Documents for trip %s:\n\n", trip)
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:  %s\n", docs[i].Title)
		cmd.Printf("    Status: %s\n", docs[i].Status)
		if docs[i].URI != "" {
			cmd.Printf("    URI:    %s\n", docs[i].URI)
		}
		if docs[i].DeletedAt != nil {
			cmd.Printf("    Deleted: %s\n", docs[i].DeletedAt.Format("2006-01-02 15:04:05"))
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	doc, err := svc.Get(cmd.Context(), trip, caller, args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Source:   %s\n", doc.SourceType)
	if doc.URI != "" {
		cmd.Printf("  URI:      %s\n", doc.URI)
	}
	cmd.Printf("  Status:   %s\n", doc.Status)
	if doc.FailureReason != "" {
		cmd.Printf("  Reason:   %s\n", doc.FailureReason)
	}
	cmd.Printf("  Added by: %s\n", doc.CreatedBy)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}
	trip, caller, err := requireCaller()
	if err != nil {
		return err
	}

	if err := svc.Delete(cmd.Context(), trip, caller, args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}

func runDocumentPurge(cmd *cobra.Command, _ []string) error {
	svc, err := ingestionService()
	if err != nil {
		return err
	}

	n, err := svc.PurgeFailed(cmd.Context(), purgeOlderThan)
	if err != nil {
		return fmt.Errorf("failed to purge documents: %w", err)
	}

	cmd.Printf("Purged %d failed documents.\n", n)
	return nil
}
