package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/streamview/internal/config"
	"github.com/pders01/streamview/internal/controller"
	"github.com/pders01/streamview/internal/debuglog"
	"github.com/pders01/streamview/internal/search"
	"github.com/pders01/streamview/internal/state"
	"github.com/pders01/streamview/internal/storage"
	"github.com/pders01/streamview/internal/transport"
	"github.com/pders01/streamview/internal/tui"
	"github.com/pders01/streamview/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

type options struct {
	configPath string
	url        string
	capture    string
	logLevel   string
	quiet      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "streamview",
		Short:         "Browse the messages of a live topic stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&opts.url, "url", "", "Server websocket URL (overrides config)")
	flags.StringVar(&opts.capture, "capture", "", "Capture received messages into this file (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error or off")
	root.Flags().BoolVar(&opts.quiet, "quiet", false, "Skip startup banner")

	root.AddCommand(newVersionCmd(), newConfigCmd(opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", tui.AppName, Version)
			fmt.Fprintln(out, "Topic stream viewer")
			fmt.Fprintln(out, "github.com/pders01/streamview")
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	generate := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return errors.Wrap(err, "generate config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}

	var format string
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	printCmd.Flags().StringVar(&format, "format", "toml", "Output format: toml or yaml")

	cfgCmd.AddCommand(generate, printCmd)
	return cfgCmd
}

// loadConfig reads the config file, applies flag overrides and validates
// the server URL and file paths.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if opts.url != "" {
		cfg.Server.URL = opts.url
	}
	if opts.capture != "" {
		cfg.Capture.Path = opts.capture
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	cfg.Server.URL, err = validation.NewServerURLValidator().ValidateAndNormalize(cfg.Server.URL)
	if err != nil {
		return nil, err
	}

	paths := validation.NewPermissivePathHandler()
	if cfg.Capture.Path != "" {
		if cfg.Capture.Path, err = paths.CapturePath(cfg.Capture.Path); err != nil {
			return nil, errors.Wrap(err, "capture path")
		}
	}
	if cfg.Capture.SearchIndex != "" {
		if cfg.Capture.SearchIndex, err = paths.IndexPath(cfg.Capture.SearchIndex); err != nil {
			return nil, errors.Wrap(err, "search index path")
		}
	}
	if debuglog.ParseLogLevel(cfg.Log.Level) != debuglog.LevelOff {
		if cfg.Log.File, err = paths.LogPath(cfg.Log.File); err != nil {
			return nil, errors.Wrap(err, "log path")
		}
	}
	return cfg, nil
}

// backends holds the optional capture archive and search index.
type backends struct {
	archive *storage.Archive
	index   *search.BleveEngine
}

func openBackends(cfg *config.Config) (*backends, []controller.Option, error) {
	b := &backends{}
	var opts []controller.Option

	if cfg.Capture.Path != "" {
		archive, err := storage.NewArchive(cfg.Capture.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open capture archive")
		}
		b.archive = archive
		opts = append(opts, controller.WithRecorder(archive))
		debuglog.Infof("capturing messages into %s", archive.Path())
	}

	if cfg.Capture.SearchIndex != "" {
		index, err := search.NewBleveEngine(b.archive, cfg.Capture.SearchIndex)
		if err != nil {
			b.Close()
			return nil, nil, errors.Wrap(err, "open search index")
		}
		b.index = index
		opts = append(opts, controller.WithSearcher(index))
		debuglog.Infof("search index at %s", cfg.Capture.SearchIndex)
	}

	return b, opts, nil
}

func (b *backends) Close() error {
	var firstErr error
	if b.index != nil {
		if err := b.index.Close(); err != nil {
			firstErr = err
		}
	}
	if b.archive != nil {
		if err := b.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newController(cfg *config.Config, extra ...controller.Option) *controller.Controller {
	store := state.New(
		state.WithPageSize(cfg.View.PageSize),
		state.WithTopic(cfg.View.DefaultTopic),
	)
	opts := append([]controller.Option{controller.WithRequestTimeout(cfg.View.RequestTimeout)}, extra...)
	return controller.New(store, opts...)
}

func run(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return err
	}
	defer debuglog.Close()

	if !opts.quiet {
		tui.ShowBanner(os.Stdout, Version)
	}

	b, ctrlOpts, err := openBackends(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	conn, err := transport.Dial(ctx, cfg.Server.URL,
		transport.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
		transport.WithWriteTimeout(cfg.Server.WriteTimeout),
		transport.WithOrigin(cfg.Server.Origin),
	)
	if err != nil {
		return err
	}

	ctrl := newController(cfg, ctrlOpts...)
	defer ctrl.Close()

	app := tui.NewApp(ctrl, cfg)
	defer app.Close()
	program := tea.NewProgram(app, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer program.Quit()
		if err := conn.Run(gctx, ctrl); err != nil {
			return errors.Wrap(err, "connection lost")
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil {
			return errors.Wrap(err, "run ui")
		}
		return nil
	})

	return g.Wait()
}
