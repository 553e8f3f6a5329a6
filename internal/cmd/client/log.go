package client

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/natlog/internal/commitlog"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

// printedRecord is the JSON shape emitted by read/tail.
type printedRecord struct {
	ID          string `json:"id"`
	Partition   uint32 `json:"partition"`
	Offset      uint64 `json:"offset"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	ValueHex    string `json:"value_hex,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

func printRecord(rec commitlog.Record) printedRecord {
	p := printedRecord{
		ID:          rec.ID.String(),
		Partition:   rec.Partition,
		Offset:      rec.Offset,
		Key:         string(rec.Key),
		CreatedAtMs: rec.CreatedAtMs,
	}
	if isPrintable(rec.Value) {
		p.Value = string(rec.Value)
	} else {
		p.ValueHex = hex.EncodeToString(rec.Value)
	}
	return p
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) || c == 0x7f {
			return false
		}
	}
	return true
}

// NewLogCommand constructs the `log` command group and subcommands.
func NewLogCommand(logger logpkg.Logger) *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Commit log operations"}
	logCmd.AddCommand(
		newLogAppendCommand(logger),
		newLogReadCommand(logger),
		newLogTailCommand(logger),
		newLogStatsCommand(logger),
	)
	return logCmd
}

// newLogAppendCommand constructs the `log append` subcommand.
func newLogAppendCommand(logger logpkg.Logger) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append a record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			value, _ := cmd.Flags().GetString("value")
			if key == "" {
				return fmt.Errorf("--key is required")
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			p, off, err := rt.Log().Append(cmd.Context(), []byte(key), []byte(value), time.Now().UnixMilli())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "partition=%d offset=%d\n", p, off)
			return nil
		},
	}
	appendCmd.Flags().StringP("key", "k", "", "Record key (required, routes the partition)")
	appendCmd.Flags().StringP("value", "v", "", "Record value")
	return appendCmd
}

// newLogReadCommand constructs the `log read` subcommand.
func newLogReadCommand(logger logpkg.Logger) *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read records from a partition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			partition, _ := cmd.Flags().GetUint32("partition")
			offset, _ := cmd.Flags().GetUint64("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			filterExpr, _ := cmd.Flags().GetString("filter")

			filter, err := newCELFilter(filterExpr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			recs, err := rt.Log().Read(partition, offset, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range recs {
				if !filter.Eval(rec) {
					continue
				}
				if err := enc.Encode(printRecord(rec)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	readCmd.Flags().Uint32P("partition", "p", 0, "Partition to read")
	readCmd.Flags().Uint64("offset", 0, "Start offset")
	readCmd.Flags().Int("limit", 100, "Max records (0 = all)")
	readCmd.Flags().String("filter", "", "CEL filter, e.g. 'key == \"user-1\" && size > 10'")
	return readCmd
}

// newLogTailCommand constructs the `log tail` subcommand.
func newLogTailCommand(logger logpkg.Logger) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a partition's new records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			partition, _ := cmd.Flags().GetUint32("partition")
			fromStart, _ := cmd.Flags().GetBool("from-start")
			limit, _ := cmd.Flags().GetInt("limit")
			filterExpr, _ := cmd.Flags().GetString("filter")

			filter, err := newCELFilter(filterExpr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			start := uint64(0)
			if !fromStart {
				if start, err = rt.Log().TailOffset(partition); err != nil {
					return err
				}
			}
			reader, err := rt.Log().NewReader(partition, start)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			printed := 0
			for {
				if err := cmd.Context().Err(); err != nil {
					return nil
				}
				recs, err := reader.Next(64)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					if !filter.Eval(rec) {
						continue
					}
					if err := enc.Encode(printRecord(rec)); err != nil {
						return err
					}
					printed++
					if limit > 0 && printed >= limit {
						return nil
					}
				}
				if len(recs) == 0 {
					rt.Log().WaitForAppend(partition, 250*time.Millisecond)
				}
			}
		},
	}
	tailCmd.Flags().Uint32P("partition", "p", 0, "Partition to follow")
	tailCmd.Flags().Bool("from-start", false, "Start from offset 0 instead of the tail")
	tailCmd.Flags().Int("limit", 0, "Stop after N records (0 = infinite)")
	tailCmd.Flags().String("filter", "", "CEL filter")
	return tailCmd
}

// newLogStatsCommand constructs the `log stats` subcommand.
func newLogStatsCommand(logger logpkg.Logger) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-partition tail offsets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			var total uint64
			for p := 0; p < rt.Log().NumPartitions(); p++ {
				tail, err := rt.Log().TailOffset(uint32(p))
				if err != nil {
					return err
				}
				total += tail
				fmt.Fprintf(cmd.OutOrStdout(), "partition=%d tail=%d\n", p, tail)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "partitions=%d records=%d\n", rt.Log().NumPartitions(), total)
			return nil
		},
	}
	return statsCmd
}
