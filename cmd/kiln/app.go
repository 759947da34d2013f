package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/diagfmt"
	"kiln/internal/driver"
	"kiln/internal/prof"
	"kiln/internal/trace"
)

// app is the per-invocation state built by setupApp.
type app struct {
	cfg      config.Config
	tracer   trace.Tracer
	color    bool
	pathMode diagfmt.PathMode
	jobs     int
	prof     *prof.Session
}

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a
	}
	return &app{cfg: config.Default(), tracer: trace.Nop}
}

// setupApp loads the configuration, applies flags over it and starts the
// tracer. Precedence: defaults, kiln.toml, KILN_* variables, flags.
func setupApp(cmd *cobra.Command, _ []string) error {
	pf := cmd.Root().PersistentFlags()
	a := &app{}

	cfgPath, err := pf.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if cfgPath != "" {
		a.cfg, err = config.Load(cfgPath)
		if err == nil {
			a.cfg.ApplyEnv()
			err = a.cfg.Validate()
		}
	} else {
		a.cfg, err = config.Discover(".")
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if n, _ := pf.GetInt("max-diagnostics"); n > 0 {
		a.cfg.Diagnostics.Max = n
	}
	for flag, dst := range map[string]*string{
		"trace":        &a.cfg.Trace.Level,
		"trace-output": &a.cfg.Trace.Output,
		"trace-mode":   &a.cfg.Trace.Mode,
	} {
		if pf.Changed(flag) {
			*dst, _ = pf.GetString(flag)
		}
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if a.jobs, err = pf.GetInt("jobs"); err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}

	colorFlag, _ := pf.GetString("color")
	switch colorFlag {
	case "on":
		a.color = true
	case "off":
	case "auto":
		a.color = isTerminal(os.Stdout)
	default:
		return fmt.Errorf("unknown color mode %q (auto|on|off)", colorFlag)
	}
	pathFlag, _ := pf.GetString("path-mode")
	var ok bool
	if a.pathMode, ok = diagfmt.ParsePathMode(pathFlag); !ok {
		return fmt.Errorf("unknown path mode %q", pathFlag)
	}

	tcfg, err := a.cfg.TraceConfig()
	if err != nil {
		return err
	}
	if a.tracer, err = trace.New(tcfg); err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}

	var po prof.Options
	po.CPU, _ = pf.GetString("cpuprofile")
	po.Mem, _ = pf.GetString("memprofile")
	po.Trace, _ = pf.GetString("runtime-trace")
	if po.Enabled() {
		if a.prof, err = prof.Start(po); err != nil {
			_ = a.tracer.Close()
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = trace.WithTracer(context.WithValue(ctx, appKey{}, a), a.tracer)
	cmd.SetContext(ctx)
	return nil
}

// withTeardown closes the tracer after run, on failure too; cobra skips
// post-run hooks when RunE fails.
func withTeardown(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if terr := teardownApp(cmd); err == nil {
				err = terr
			}
		}()
		return run(cmd, args)
	}
}

func teardownApp(cmd *cobra.Command) error {
	a := appFrom(cmd)
	if err := a.prof.Stop(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
	}
	a.prof = nil
	if a.tracer == nil {
		return nil
	}
	if err := a.tracer.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
	}
	return a.tracer.Close()
}

// dumpTraceRing prints the ring buffer after a failed run; error-level
// tracing keeps events only for this.
func dumpTraceRing(cmd *cobra.Command) {
	ring := trace.RingOf(appFrom(cmd).tracer)
	if ring == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "== trace ==")
	if err := ring.Dump(cmd.ErrOrStderr(), trace.FormatText); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
	}
}

// driverOptions builds the pipeline options shared by lower and check.
func (a *app) driverOptions(cmd *cobra.Command) (driver.Options, error) {
	opt := driver.Options{Config: a.cfg, Jobs: a.jobs}
	if w, _ := cmd.Flags().GetBool("warnings-as-errors"); w {
		opt.Config.Diagnostics.WarningsAsErrors = true
	}
	useCache, _ := cmd.Flags().GetBool("cache")
	if dir := a.cfg.Output.CacheDir; dir != "" || useCache {
		if dir == "" {
			var err error
			if dir, err = driver.DefaultCacheDir("kiln"); err != nil {
				return opt, err
			}
		}
		c, err := driver.OpenDiskCache(dir)
		if err != nil {
			return opt, err
		}
		opt.Cache = c
	}
	argv := a.cfg.Gate.Command
	if s, _ := cmd.Flags().GetString("borrow-checker"); s != "" {
		argv = strings.Fields(s)
	}
	if len(argv) > 0 {
		opt.Gate = driver.CommandGate{Argv: argv}
	}
	return opt, nil
}

// addPipelineFlags registers flags shared by lower and check.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("cache", false, "reuse lowered modules from the disk cache")
	cmd.Flags().String("borrow-checker", "", "external ownership checker command run before lowering")
	cmd.Flags().String("diag-format", "pretty", "diagnostic format (pretty|short|json)")
	cmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	cmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	cmd.Flags().Bool("timings", false, "print per-document phase timings to stderr")
}
