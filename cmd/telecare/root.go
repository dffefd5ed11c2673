package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/telecare"
)

type rootOptions struct {
	configPath string
	baseURL    string
	storePath  string
	debug      bool
	quiet      bool
}

// app is resolved once per invocation in PersistentPreRunE.
type app struct {
	opts    rootOptions
	cfg     telecare.Config
	logger  *zap.Logger
	session *telecare.Session

	// build lets tests inject a transport or logger.
	build func(*telecare.Builder) *telecare.Builder
}

func newRootCommand(build func(*telecare.Builder) *telecare.Builder) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:           "telecare",
		Short:         "Telehealth API client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "config file (YAML, JSON or TOML)")
	flags.StringVar(&a.opts.baseURL, "base-url", "", "backend base URL, overrides config")
	flags.StringVar(&a.opts.storePath, "store-path", "", "token file used when the store backend is memory or file")
	flags.BoolVar(&a.opts.debug, "debug", false, "development logging")
	flags.BoolVarP(&a.opts.quiet, "quiet", "q", false, "disable logging")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.refreshCommand(),
		a.registerCommand(),
		a.mfaCommand(),
		a.consultationsCommand(),
		a.prescriptionsCommand(),
	)
	return root
}

func (a *app) open(notices io.Writer) error {
	cfg, err := telecare.LoadConfig(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.baseURL != "" {
		cfg.BaseURL = a.opts.baseURL
	}
	if cfg.Storage.Backend == "memory" || a.opts.storePath != "" {
		path := a.opts.storePath
		if path == "" {
			if path, err = defaultStorePath(); err != nil {
				return err
			}
		}
		cfg.Storage.Backend = "file"
		cfg.Storage.Path = path
	}
	a.cfg = cfg

	switch {
	case a.opts.quiet:
		a.logger = zap.NewNop()
	case a.opts.debug:
		a.logger, err = zap.NewDevelopment()
	default:
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	b := telecare.New().
		WithConfig(cfg).
		WithLogger(a.logger).
		WithNotificationSink(noticeSink(notices))
	if a.build != nil {
		b = a.build(b)
	}
	a.session, err = b.Build()
	if err != nil {
		return err
	}
	return nil
}

func (a *app) close() error {
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			return err
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

// restore loads the persisted session and fails when there is none.
func (a *app) restore(ctx context.Context) (*telecare.User, error) {
	user, err := a.session.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("not logged in: %w", err)
	}
	return user, nil
}

// noticeSink prints session notifications as one line each on w.
func noticeSink(w io.Writer) telecare.NotificationSink {
	return telecare.NotificationFunc(func(_ context.Context, n telecare.Notification) {
		fmt.Fprintf(w, "[%s] %s\n", n.Kind, n.Message)
	})
}

func defaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "telecare", "session.yaml"), nil
}
