package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/artifact"
	"kiln/internal/driver"
	"kiln/internal/lir"
	"kiln/internal/observ"
)

func newLowerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lower [flags] <tree.yaml|directory>...",
		Short: "Lower syntax trees and write IR modules",
		Long: `Lower every tree document to an IR module. With --emit text the module
is printed (or written as <module>.lir under --out); with --emit msgpack an
artifact <module>.klir is written for the native backend.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withTeardown(runLower),
	}
	addPipelineFlags(cmd)
	cmd.Flags().StringP("out", "o", "", "output directory, or the artifact file for a single input")
	cmd.Flags().String("emit", "", "output format (text|msgpack; default from config)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] <tree.yaml|directory>...",
		Short: "Lower syntax trees and report diagnostics only",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withTeardown(runCheck),
	}
	addPipelineFlags(cmd)
	return cmd
}

// runPipeline lowers args and prints every document's diagnostics.
func runPipeline(cmd *cobra.Command, args []string) ([]*driver.Result, error) {
	a := appFrom(cmd)
	opt, err := a.driverOptions(cmd)
	if err != nil {
		return nil, err
	}
	paths, err := driver.ListTrees(args)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no tree documents in %s", strings.Join(args, ", "))
	}
	timings, _ := cmd.Flags().GetBool("timings")
	var timer *observ.Timer
	if timings {
		timer = observ.NewTimer()
		opt.Observer = observePhases(timer)
	}
	results, err := driver.LowerFiles(cmd.Context(), paths, opt)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if err := printDiagnostics(cmd, a, r); err != nil {
			return nil, fmt.Errorf("failed to format diagnostics: %w", err)
		}
	}
	if timer != nil {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary(paths))
	}
	return results, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	results, err := runPipeline(cmd, args)
	if err != nil {
		return err
	}
	s := summarize(results)
	fmt.Fprintf(cmd.ErrOrStderr(), "checked %d documents: %s\n", len(results), s)
	if s.failed > 0 {
		for _, p := range failedPaths(results) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %s\n", p)
		}
		dumpTraceRing(cmd)
		return errFailed
	}
	return nil
}

func runLower(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	emit, _ := cmd.Flags().GetString("emit")
	if emit == "" {
		emit = a.cfg.Output.Format
	}
	if emit != "text" && emit != "msgpack" {
		return fmt.Errorf("unknown emit format %q (text|msgpack)", emit)
	}
	out, _ := cmd.Flags().GetString("out")

	results, err := runPipeline(cmd, args)
	if err != nil {
		return err
	}
	singleFile := len(results) == 1 && strings.HasSuffix(out, artifact.Ext)
	written := make(map[string]string)
	for _, r := range results {
		if !r.OK() {
			continue
		}
		var path string
		switch {
		case emit == "text" && out == "":
			if err := lir.Dump(cmd.OutOrStdout(), r.Module); err != nil {
				return err
			}
			continue
		case emit == "text":
			path = filepath.Join(out, r.Module.Name+".lir")
		case singleFile:
			path = out
		default:
			dir := out
			if dir == "" {
				dir = "."
			}
			path = filepath.Join(dir, r.Module.Name+artifact.Ext)
		}
		if prev, dup := written[path]; dup {
			return fmt.Errorf("%s and %s both produce %s", prev, r.Path, path)
		}
		written[path] = r.Path
		if err := writeModule(path, emit, r); err != nil {
			return fmt.Errorf("%s: %w", r.Path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}
	if s := summarize(results); s.failed > 0 {
		dumpTraceRing(cmd)
		return errFailed
	}
	return nil
}

func writeModule(path, emit string, r *driver.Result) error {
	if emit == "msgpack" {
		return artifact.WriteFile(path, r.Module, artifact.NewHeader(r.Module, r.Source.String()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(lir.DumpString(r.Module)), 0o600)
}
