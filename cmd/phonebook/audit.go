package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/phonebook/internal/models"
)

var (
	auditAction string
	auditEntity string
	auditUserID string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE:  runAuditList,
}

func init() {
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (CREATE, UPDATE, DELETE)")
	auditListCmd.Flags().StringVar(&auditEntity, "entity", "", "Filter by entity type (extensions, queues, admin_users)")
	auditListCmd.Flags().StringVar(&auditUserID, "user", "", "Filter by user id")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries to show")

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func runAuditList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ops, err := openOps(ctx)
	if err != nil {
		return err
	}
	defer ops.Close()

	logs, err := ops.AuditLogs(ctx, models.AuditLogFilter{
		Action:     models.AuditAction(strings.ToUpper(auditAction)),
		EntityType: auditEntity,
		UserID:     auditUserID,
		Limit:      auditLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}
	if len(logs) == 0 {
		fmt.Println("No audit entries")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tENTITY\tENTITY_ID\tUSER\tIP")
	fmt.Fprintln(w, "----\t------\t------\t---------\t----\t--")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			l.Action, l.EntityType, deref(l.EntityID), deref(l.UserEmail), deref(l.IPAddress))
	}
	w.Flush()
	fmt.Printf("\nShown: %d entries\n", len(logs))

	return nil
}
