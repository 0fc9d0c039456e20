package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/phonebook/internal/client"
	"github.com/foxzi/phonebook/internal/models"
)

var (
	extListStatus     string
	extListQueue      string
	extListDepartment string

	extNumber     string
	extName       string
	extDepartment string
	extQueue      string
	extStatus     string
)

var extensionCmd = &cobra.Command{
	Use:     "extension",
	Aliases: []string{"ext"},
	Short:   "Extension management commands",
}

var extensionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extensions",
	RunE:  runExtensionList,
}

var extensionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an extension",
	RunE:  runExtensionAdd,
}

var extensionUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an extension; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtensionUpdate,
}

var extensionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an extension",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtensionDelete,
}

func init() {
	extensionListCmd.Flags().StringVar(&extListStatus, "status", "", "Filter by status (active, inactive, maintenance)")
	extensionListCmd.Flags().StringVar(&extListQueue, "queue", "", "Filter by queue name or id")
	extensionListCmd.Flags().StringVar(&extListDepartment, "department", "", "Filter by department")

	for _, c := range []*cobra.Command{extensionAddCmd, extensionUpdateCmd} {
		c.Flags().StringVar(&extNumber, "number", "", "Extension number")
		c.Flags().StringVar(&extName, "name", "", "Display name")
		c.Flags().StringVar(&extDepartment, "department", "", "Department")
		c.Flags().StringVar(&extQueue, "queue", "", "Queue name or id")
		c.Flags().StringVar(&extStatus, "status", "", "Status (active, inactive, maintenance)")
	}
	extensionAddCmd.MarkFlagRequired("number")
	extensionAddCmd.MarkFlagRequired("name")

	extensionCmd.AddCommand(extensionListCmd, extensionAddCmd, extensionUpdateCmd, extensionDeleteCmd)
	rootCmd.AddCommand(extensionCmd)
}

// resolveQueue maps a queue name (case-insensitive) or id to its id
func resolveQueue(queues []models.Queue, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	for _, q := range queues {
		if q.ID == ref || strings.EqualFold(q.Name, ref) {
			return q.ID, nil
		}
	}
	return "", fmt.Errorf("queue not found: %s", ref)
}

func parseStatus(s string) (models.ExtensionStatus, error) {
	status := models.ExtensionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q (use active, inactive or maintenance)", s)
	}
	return status, nil
}

func queueNames(queues []models.Queue) map[string]string {
	names := make(map[string]string)
	for _, q := range queues {
		names[q.ID] = q.Name
	}
	return names
}

// notFound rewords a missing extension error
func notFound(err error, id string) error {
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("extension not found: %s", id)
	}
	return err
}

func runExtensionList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ops, err := openOps(ctx)
	if err != nil {
		return err
	}
	defer ops.Close()

	queues, err := ops.Queues(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queues: %w", err)
	}
	queueID, err := resolveQueue(queues, extListQueue)
	if err != nil {
		return err
	}
	all, err := ops.Extensions(ctx, extListDepartment)
	if err != nil {
		return fmt.Errorf("failed to list extensions: %w", err)
	}

	var extensions []models.Extension
	for _, e := range all {
		if extListStatus != "" && string(e.Status) != extListStatus {
			continue
		}
		if queueID != "" && e.QueueID != queueID {
			continue
		}
		extensions = append(extensions, e)
	}

	if len(extensions) == 0 {
		fmt.Println("No extensions")
		return nil
	}

	names := queueNames(queues)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNUMBER\tNAME\tDEPARTMENT\tQUEUE\tSTATUS")
	fmt.Fprintln(w, "--\t------\t----\t----------\t-----\t------")
	for _, e := range extensions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Number, e.Name, e.Department, names[e.QueueID], e.Status)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d extensions\n", len(extensions))

	return nil
}

func runExtensionAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ops, err := openOps(ctx)
	if err != nil {
		return err
	}
	defer ops.Close()

	in := models.ExtensionInput{
		Number:     strings.TrimSpace(extNumber),
		Name:       strings.TrimSpace(extName),
		Department: extDepartment,
		Status:     models.StatusActive,
		Metadata:   models.ExtensionMetadata{SchemaVersion: models.MetadataSchemaVersion},
	}
	if in.Number == "" || in.Name == "" {
		return fmt.Errorf("number and name are required")
	}
	if extStatus != "" {
		if in.Status, err = parseStatus(extStatus); err != nil {
			return err
		}
	}
	if extQueue != "" {
		queues, err := ops.Queues(ctx)
		if err != nil {
			return fmt.Errorf("failed to list queues: %w", err)
		}
		if in.QueueID, err = resolveQueue(queues, extQueue); err != nil {
			return err
		}
	}

	ext, err := ops.AddExtension(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to add extension: %w", err)
	}

	fmt.Printf("Extension %s added: %s\n", ext.Number, ext.ID)
	return nil
}

func runExtensionUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ops, err := openOps(ctx)
	if err != nil {
		return err
	}
	defer ops.Close()

	var patch models.ExtensionPatch
	flags := cmd.Flags()
	if flags.Changed("number") {
		n := strings.TrimSpace(extNumber)
		if n == "" {
			return fmt.Errorf("number must not be empty")
		}
		patch.Number = &n
	}
	if flags.Changed("name") {
		n := strings.TrimSpace(extName)
		if n == "" {
			return fmt.Errorf("name must not be empty")
		}
		patch.Name = &n
	}
	if flags.Changed("department") {
		patch.Department = &extDepartment
	}
	if flags.Changed("queue") {
		queues, err := ops.Queues(ctx)
		if err != nil {
			return fmt.Errorf("failed to list queues: %w", err)
		}
		id, err := resolveQueue(queues, extQueue)
		if err != nil {
			return err
		}
		patch.QueueID = &id
	}
	if flags.Changed("status") {
		status, err := parseStatus(extStatus)
		if err != nil {
			return err
		}
		patch.Status = &status
	}

	ext, err := ops.UpdateExtension(ctx, args[0], patch)
	if err != nil {
		return notFound(err, args[0])
	}

	fmt.Printf("Extension %s updated\n", ext.Number)
	return nil
}

func runExtensionDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ops, err := openOps(ctx)
	if err != nil {
		return err
	}
	defer ops.Close()

	if err := ops.DeleteExtension(ctx, args[0]); err != nil {
		return notFound(err, args[0])
	}

	fmt.Printf("Extension %s deleted\n", args[0])
	return nil
}
