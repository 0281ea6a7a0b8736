package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/core/domain"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage trip memberships",
	Long: `Manage the local copy of trip memberships. Only active members can
ingest, retrieve or query.`,
}

var memberSetCmd = &cobra.Command{
	Use:   "set [user-id]",
	Short: "Add a member or change their status",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberSet,
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a trip's members",
	Args:  cobra.NoArgs,
	RunE:  runMemberList,
}

var (
	memberStatus string
	memberRole   string
)

func init() {
	memberSetCmd.Flags().StringVar(&memberStatus, "status", string(domain.MembershipActive), "active, pending or removed")
	memberSetCmd.Flags().StringVar(&memberRole, "role", "", "team role, e.g. organiser or treasurer")

	memberCmd.AddCommand(memberSetCmd)
	memberCmd.AddCommand(memberListCmd)
	rootCmd.AddCommand(memberCmd)
}

func runMemberSet(cmd *cobra.Command, args []string) error {
	if engine == nil || engine.Members == nil {
		return errors.New("membership service not configured")
	}
	trip := strings.TrimSpace(tripID)
	if trip == "" {
		return fmt.Errorf("%w: --trip is required", domain.ErrInvalidInput)
	}

	m := domain.Membership{
		TripID: trip,
		UserID: args[0],
		Status: domain.MembershipStatus(memberStatus),
		Role:   memberRole,
	}
	if err := engine.Members.Set(cmd.Context(), m); err != nil {
		return fmt.Errorf("failed to set membership: %w", err)
	}

	cmd.Printf("%s is now %s on trip %s\n", m.UserID, m.Status, trip)
	return nil
}

func runMemberList(cmd *cobra.Command, _ []string) error {
	if engine == nil || engine.Members == nil {
		return errors.New("membership service not configured")
	}
	trip := strings.TrimSpace(tripID)
	if trip == "" {
		return fmt.Errorf("%w: --trip is required", domain.ErrInvalidInput)
	}

	members, err := engine.Members.List(cmd.Context(), trip)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		cmd.Printf("No members on trip %s\n", trip)
		return nil
	}

	cmd.Printf("Members of trip %s:\n\n", trip)
	for _, m := range members {
		if m.Role != "" {
			cmd.Printf("  %-20s %-8s %s\n", m.UserID, m.Status, m.Role)
			continue
		}
		cmd.Printf("  %-20s %s\n", m.UserID, m.Status)
	}
	return nil
}
