package client

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	logpkg "github.com/rzbill/natlog/pkg/log"
)

// NewOffsetsCommand constructs the `offsets` command group.
func NewOffsetsCommand(logger logpkg.Logger) *cobra.Command {
	offsetsCmd := &cobra.Command{Use: "offsets", Short: "Committed offset operations"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show committed offsets for a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, _ := cmd.Flags().GetString("group")
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			store := rt.OffsetStore()
			groups := []string{group}
			if group == "" {
				if groups, err = store.Groups(); err != nil {
					return err
				}
			}
			for _, g := range groups {
				snap, err := store.Snapshot(g)
				if err != nil {
					return err
				}
				parts := make([]int, 0, len(snap))
				for p := range snap {
					parts = append(parts, int(p))
				}
				sort.Ints(parts)
				for _, p := range parts {
					fmt.Fprintf(cmd.OutOrStdout(), "group=%s partition=%d next=%d\n", g, p, snap[uint32(p)])
				}
			}
			return nil
		},
	}
	showCmd.Flags().StringP("group", "g", "", "Group (empty = all groups)")
	offsetsCmd.AddCommand(showCmd)
	return offsetsCmd
}

// NewDLQCommand constructs the `dlq` command group.
func NewDLQCommand(logger logpkg.Logger) *cobra.Command {
	dlqCmd := &cobra.Command{Use: "dlq", Short: "Dead-letter operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List parked records for a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, _ := cmd.Flags().GetString("group")
			limit, _ := cmd.Flags().GetInt("limit")
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.DeadLetterSink().List(group, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	listCmd.Flags().StringP("group", "g", "default", "Group")
	listCmd.Flags().Int("limit", 100, "Max entries (0 = all)")
	dlqCmd.AddCommand(listCmd)

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a parked record by id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, _ := cmd.Flags().GetString("group")
			entryID, _ := cmd.Flags().GetString("id")
			if entryID == "" {
				return fmt.Errorf("--id is required")
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.DeadLetterSink().Remove(group, entryID)
		},
	}
	removeCmd.Flags().StringP("group", "g", "default", "Group")
	removeCmd.Flags().String("id", "", "Record id (hex)")
	dlqCmd.AddCommand(removeCmd)

	return dlqCmd
}

// NewCheckpointCommand constructs the `checkpoint` command group.
func NewCheckpointCommand(logger logpkg.Logger) *cobra.Command {
	ckptCmd := &cobra.Command{Use: "checkpoint", Short: "Checkpoint operations"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the latest snapshot for a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, _ := cmd.Flags().GetString("group")
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.CheckpointStore(group).Load()
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	showCmd.Flags().StringP("group", "g", "default", "Group")
	ckptCmd.AddCommand(showCmd)
	return ckptCmd
}
