package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomcast/internal/app"
	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	roomlog "github.com/vovakirdan/roomcast/internal/log"
	transporthttp "github.com/vovakirdan/roomcast/internal/transport/http"
)

type rootFlags struct {
	configPath string
	logLevel   string
	addr       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "roomcast",
		Short:         "Room-scoped realtime message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newTokenCmd(flags))
	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	// Stderr keeps stdout clean for the token subcommand.
	bootstrap := roomlog.NewWriter("info", roomlog.FormatConsole, os.Stderr)
	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := roomlog.NewWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting roomcast server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "override HTTP listen address")
	return cmd
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a development JWT for a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			jwtCfg := transporthttp.JWTConfigFrom(cfg)
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}
			if name == "" {
				name = args[0]
			}
			token, err := auth.GenerateToken(jwtCfg, args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to 24h)")
	return cmd
}
