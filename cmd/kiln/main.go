package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kiln/internal/version"
)

// errFailed signals that diagnostics were already printed; main only sets
// the exit status.
var errFailed = errors.New("lowering failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kiln",
		Short:         "Lower checked syntax trees to kiln IR",
		Long:          `kiln monomorphizes, pattern-compiles and closure-converts a checked syntax tree into a low-level IR module for the native backend`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Глобальные флаги
	pf := root.PersistentFlags()
	pf.String("config", "", "path to kiln.toml (default: nearest one above the working directory)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Int("max-diagnostics", 0, "maximum number of diagnostics to keep per document (0 = config)")
	pf.String("trace", "", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-output", "", "trace output file (default stderr)")
	pf.String("trace-mode", "", "trace storage (stream|ring|both)")
	pf.String("path-mode", "auto", "paths in diagnostics (auto|absolute|relative|basename)")
	pf.Int("jobs", 0, "max parallel documents (0 = GOMAXPROCS)")
	pf.String("cpuprofile", "", "write a CPU profile to file")
	pf.String("memprofile", "", "write a heap profile to file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to file")

	root.PersistentPreRunE = setupApp

	root.AddCommand(newLowerCmd(), newCheckCmd(), newDumpCmd(), newCleanCmd(), newVersionCmd())
	return root
}

// main executes the root command and maps failures to exit status 1.
func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "kiln: %v\n", err)
		}
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
