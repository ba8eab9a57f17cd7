// Package main provides the cinematic CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/richinex/cinematic/cli"
	"github.com/richinex/cinematic/config"
	"github.com/richinex/cinematic/discord"
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/observe"
)

var (
	// Global flags
	configPath  string
	logFormat   string
	logLevel    string
	metricsAddr string
	streaming   bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "cinematic",
		Short: "A media assistant that drives Radarr, Sonarr, web search and memory",
		Long: `A conversational media assistant.

The model answers in prose and issues bracketed commands:
- [CMD~op~args] runs an operation without waiting for its result
- [CMDRET~op~args] runs an operation and feeds [RES~...] back to the model`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log_level from config")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&streaming, "stream", true, "Stream model output")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(discordCmd())
	rootCmd.AddCommand(commandsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is everything a subcommand needs, torn down by close.
type session struct {
	app      *cli.App
	logger   *slog.Logger
	shutdown func(context.Context) error
	server   *http.Server
}

func startSession(cmd *cobra.Command) (*session, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	if cmd.Flags().Changed("stream") {
		settings.LLM.Streaming = streaming
	}

	logger := newLogger(os.Stderr, parseLevel(settings.LogLevel), logFormat)
	slog.SetDefault(logger)

	shutdown, err := observe.InitProvider(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to initialise metrics: %w", err)
	}

	s := &session{logger: logger, shutdown: shutdown}
	if metricsAddr != "" {
		s.server = serveMetrics(metricsAddr, logger)
	}

	s.app, err = cli.NewApp(settings, cli.Options{
		Metrics: observe.DefaultMetrics(),
		Logger:  logger,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.app != nil {
		if err := s.app.Close(); err != nil {
			s.logger.Warn("failed to close storage", "error", err)
		}
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to stop metrics server", "error", err)
		}
	}
	if err := s.shutdown(ctx); err != nil {
		s.logger.Warn("failed to flush metrics", "error", err)
	}
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return server
}

// newLogger creates a structured logger that writes to w at the given
// level. Any format other than "json" gives text output.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func chatCmd() *cobra.Command {
	var user string
	var admin bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			return cli.Chat(cmd.Context(), s.app, dispatch.Caller{User: user, Admin: admin}, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "cli", "User id for history and memory")
	cmd.Flags().BoolVar(&admin, "admin", false, "Allow admin-only commands")

	return cmd
}

func askCmd() *cobra.Command {
	var user string
	var admin bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			caller := dispatch.Caller{User: user, Admin: admin}
			return cli.Ask(cmd.Context(), s.app, caller, strings.Join(args, " "), os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "cli", "User id for history and memory")
	cmd.Flags().BoolVar(&admin, "admin", false, "Allow admin-only commands")

	return cmd
}

func discordCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "discord",
		Short: "Run the Discord bot",
		Long: `Run the assistant as a Discord bot.

The bot answers messages that mention it. With --debug it answers messages
starting with the debug prefix instead, so a development instance can share
a server with the production bot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			dc := s.app.Settings.Discord
			bot, err := discord.New(discord.Config{
				Token:       dc.Token,
				AdminIDs:    dc.AdminIDs,
				Debug:       debug || dc.Debug,
				DebugPrefix: dc.DebugPrefix,
			}, s.app.Chat)
			if err != nil {
				return err
			}
			err = bot.WithLogger(s.logger).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Answer prefixed messages instead of mentions")

	return cmd
}

func commandsCmd() *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands available to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			cli.ListCommands(os.Stdout, s.app.Agent.Dispatcher(), admin)
			return nil
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Include admin-only commands")

	return cmd
}
