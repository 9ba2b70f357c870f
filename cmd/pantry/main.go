// Command pantry inspects and edits a SQLite-backed cache file. It is
// a maintenance tool: values are read and written as JSON and stored in
// the same msgpack form the library uses, so a process using the same
// file sees whatever the tool does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"

	"github.com/pantrykv/pantry"
	"github.com/pantrykv/pantry/sqlitestore"
)

type rootFlags struct {
	db      string
	verbose bool
}

var (
	rf      rootFlags
	rootCmd = &cobra.Command{
		Use:           "pantry",
		Short:         "Inspect and edit a pantry cache file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// withCache opens the cache file and hands it to fn, closing it after.
func withCache(fn func(ctx context.Context, c *pantry.Cache) error) error {
	ctx := context.Background()
	store, err := sqlitestore.Open(ctx, rf.db)
	if err != nil {
		return err
	}
	log := zap.NewNop()
	if rf.verbose {
		// Console output on a terminal, JSON when piped.
		build := zap.NewProduction
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			build = zap.NewDevelopment
		}
		if log, err = build(); err != nil {
			return err
		}
	}
	c, err := pantry.New(ctx, store, pantry.WithLogger(log))
	if err != nil {
		store.Close()
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and storage size.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				valid, err := c.Count(ctx)
				if err != nil {
					return err
				}
				all, err := c.Count(ctx, pantry.IncludeExpired())
				if err != nil {
					return err
				}
				size, err := c.SizeBytes(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("valid entries:   %d\n", valid)
				fmt.Printf("expired entries: %d\n", all-valid)
				fmt.Printf("payload size:    %s\n", humanize.Bytes(uint64(size)))
				return nil
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	var (
		partition string
		key       string
		meta      bool
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a value without renewing its expiry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				opt, err := c.PeekItem(ctx, partition, key)
				if err != nil {
					return err
				}
				item, ok := opt.Get()
				if !ok {
					return fmt.Errorf("no valid entry for %s/%s", partition, key)
				}
				out, err := json.MarshalIndent(item.Value, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				if meta {
					fmt.Printf("created: %s\n", item.CreatedAt.Format(time.RFC3339))
					fmt.Printf("expires: %s\n", item.ExpiresAt.Format(time.RFC3339))
					if item.Interval > 0 {
						fmt.Printf("sliding: %s\n", item.Interval)
					}
					if len(item.ParentKeys) > 0 {
						fmt.Printf("parents: %v\n", item.ParentKeys)
					}
				}
				return nil
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&partition, "partition", "p", pantry.DefaultPartition, "partition")
	fs.StringVarP(&key, "key", "k", "", "key (required)")
	fs.BoolVar(&meta, "meta", false, "print entry metadata")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newSetCmd() *cobra.Command {
	var (
		partition string
		key       string
		value     string
		ttl       string
		static    bool
		timed     bool
		parents   []string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a JSON value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			if err := json.Unmarshal([]byte(value), &v); err != nil {
				// Not JSON; store the raw string.
				v = value
			}
			var opts []pantry.SetOption
			if len(parents) > 0 {
				opts = append(opts, pantry.WithParentKeys(parents...))
			}
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				if static {
					return c.SetStatic(ctx, partition, key, v, opts...)
				}
				d, err := str2duration.ParseDuration(ttl)
				if err != nil {
					return fmt.Errorf("bad --ttl: %w", err)
				}
				if timed {
					return c.SetTimed(ctx, partition, key, v, d, opts...)
				}
				return c.SetSliding(ctx, partition, key, v, d, opts...)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&partition, "partition", "p", pantry.DefaultPartition, "partition")
	fs.StringVarP(&key, "key", "k", "", "key (required)")
	fs.StringVarP(&value, "value", "v", "", "JSON value; non-JSON input is stored as a string")
	fs.StringVar(&ttl, "ttl", "1h", "lifetime, e.g. 90s, 15m, 2h, 7d")
	fs.BoolVar(&static, "static", false, "store with the static interval, ignoring --ttl")
	fs.BoolVar(&timed, "timed", false, "fixed lifetime; reads do not renew")
	fs.StringSliceVar(&parents, "parent", nil, "parent key in the same partition (repeatable)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("value")
	return cmd
}

func newDelCmd() *cobra.Command {
	var (
		partition string
		key       string
	)
	cmd := &cobra.Command{
		Use:   "del",
		Short: "Remove an entry and its dependents.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				return c.Remove(ctx, partition, key)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&partition, "partition", "p", pantry.DefaultPartition, "partition")
	fs.StringVarP(&key, "key", "k", "", "key (required)")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newLsCmd() *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List valid entries.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				items, err := pantry.Items[any](ctx, c, partition)
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Printf("%s/%s\texpires %s\n", item.Partition, item.Key, item.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "limit to one partition")
	return cmd
}

func newClearCmd() *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry, or every entry in one partition.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				var n int64
				var err error
				if partition != "" {
					n, err = c.ClearPartition(ctx, partition)
				} else {
					n, err = c.Clear(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Printf("removed %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "limit to one partition")
	return cmd
}

func newEvictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Remove expired entries.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				n, err := c.EvictExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("evicted %d entries\n", n)
				return nil
			})
		},
	}
}

func newVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the cache file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *pantry.Cache) error {
				return c.Vacuum(ctx)
			})
		},
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rf.db, "db", "", "path to the cache file (required)")
	pf.BoolVar(&rf.verbose, "verbose", false, "log absorbed storage failures")
	rootCmd.MarkPersistentFlagRequired("db")

	rootCmd.AddCommand(
		newStatsCmd(),
		newGetCmd(),
		newSetCmd(),
		newDelCmd(),
		newLsCmd(),
		newClearCmd(),
		newEvictCmd(),
		newVacuumCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
