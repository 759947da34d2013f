package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/driver"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the lowered-module disk cache",
		Args:  cobra.NoArgs,
		RunE:  withTeardown(runClean),
	}
}

func runClean(cmd *cobra.Command, _ []string) error {
	dir := appFrom(cmd).cfg.Output.CacheDir
	if dir == "" {
		var err error
		if dir, err = driver.DefaultCacheDir("kiln"); err != nil {
			return err
		}
	}
	c, err := driver.OpenDiskCache(dir)
	if err != nil {
		return err
	}
	if err := c.DropAll(); err != nil {
		return fmt.Errorf("failed to remove %q: %w", dir, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
	return nil
}
