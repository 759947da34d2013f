package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/artifact"
	"kiln/internal/lir"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] <module.klir>",
		Short: "Print an IR artifact in text form",
		Args:  cobra.ExactArgs(1),
		RunE:  withTeardown(runDump),
	}
	cmd.Flags().Bool("header", false, "print only the artifact header")
	cmd.Flags().String("format", "text", "header format with --header (text|json)")
	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	mod, h, err := artifact.ReadFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	headerOnly, _ := cmd.Flags().GetBool("header")
	if !headerOnly {
		fmt.Fprintf(out, "; build %s by %s\n", h.BuildID, h.Compiler)
		return lir.Dump(out, mod)
	}
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text":
		fmt.Fprintf(out, "module:   %s\nbuild:    %s\ncompiler: %s\nschema:   %d\nsource:   %s\nfuncs:    %d\n",
			h.Module, h.BuildID, h.Compiler, h.Schema, valueOrUnknown(h.Source), len(mod.Funcs))
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Module   string `json:"module"`
			BuildID  string `json:"build_id"`
			Compiler string `json:"compiler"`
			Schema   uint16 `json:"schema"`
			Source   string `json:"source,omitempty"`
			Funcs    int    `json:"funcs"`
		}{h.Module, h.BuildID.String(), h.Compiler, h.Schema, h.Source, len(mod.Funcs)})
	}
	return fmt.Errorf("unsupported format %q (must be text or json)", format)
}
