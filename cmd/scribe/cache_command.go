package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/describecache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the description cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show description cache contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			stats, err := cache.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Producers: %d\n", stats.Producers)
			if stats.Entries > 0 {
				fmt.Fprintf(out, "Oldest: %s\n", stats.Oldest.Local().Format(time.RFC1123))
				fmt.Fprintf(out, "Newest: %s\n", stats.Newest.Local().Format(time.RFC1123))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Description cache cleared")
			return nil
		},
	})

	return cmd
}

func openCache(ctx *commandContext) (*describecache.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return describecache.Open(cfg.Cache.Path, ctx.loggerOrNop())
}
