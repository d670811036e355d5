package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/config"

	// Register all LLM providers via their init() functions.
	_ "github.com/ravi-parthasarathy/bridgezip/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, bridgezip.ErrorText(err))
		os.Exit(1)
	}
}

// app carries settings resolved by the root command to its subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        config.Config
}

func rootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}
	root := &cobra.Command{
		Use:   "bridgezip",
		Short: "BridgeZip: compact text form for node-graph workflows",
		Long: `bridgezip converts node-graph workflow JSON to a line-oriented compressed
form and back, and applies small text patches to compressed documents.

Inputs are file paths, or "-" for stdin.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "bridgezip.yaml", "config file (missing file uses defaults)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides config)")

	root.AddCommand(compressCmd())
	root.AddCommand(decompressCmd())
	root.AddCommand(patchCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(groupsCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(catalogCmd(a))
	root.AddCommand(briefCmd(a))
	root.AddCommand(planCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg
	return initLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
}

// initLogger installs the default slog logger writing to w.
func initLogger(level, format string, w io.Writer) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			slog.Warn("interrupted; cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ─── I/O helpers ─────────────────────────────────────────────────────────────

// readInput reads a path, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// singleStdin rejects more than one "-" among paths; stdin can only be read
// once.
func singleStdin(paths ...string) error {
	n := 0
	for _, p := range paths {
		if p == "-" {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("stdin (-) can only be read once; pass the other inputs as files")
	}
	return nil
}

// writeOutput writes text to path, or to the command's stdout when path is
// empty. Output always ends with a newline.
func writeOutput(cmd *cobra.Command, path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Debug("output written", "path", path, "bytes", len(text))
	return nil
}

func addOutputFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "output", "o", "", "write to file instead of stdout")
}
