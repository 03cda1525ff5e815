package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/orchestra-mcp/chatsync/config"
	"github.com/orchestra-mcp/chatsync/providers"
	"github.com/orchestra-mcp/chatsync/src/auth"
	"github.com/orchestra-mcp/chatsync/src/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatsync",
		Short: "Realtime chat sync server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", defaults.GetBool("log.pretty"), "Human readable console logs")
	flags.String("signing-secret", "", "Handshake token signing secret (overrides env)")
	flags.Bool("allow-anonymous", defaults.GetBool("auth.allow_anonymous"), "Accept ?userId= handshakes without a token")
	flags.String("admin-token", "", "Operator token for /api/admin (routes disabled when empty)")
	flags.Bool("redis", defaults.GetBool("redis.enabled"), "Relay events between instances through Redis")
	flags.String("redis-addr", defaults.GetString("redis.addr"), "Redis address for the instance bridge")
	flags.Int("max-connections", defaults.GetInt("socket.max_connections"), "Maximum concurrent WebSocket connections (0 for no limit)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.pretty", "log-pretty")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.allow_anonymous", "allow-anonymous")
	bindFlag(cmd, "auth.admin_token", "admin-token")
	bindFlag(cmd, "redis.enabled", "redis")
	bindFlag(cmd, "redis.addr", "redis-addr")
	bindFlag(cmd, "socket.max_connections", "max-connections")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("chatsync")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger := logging.NewLogger(appConfig.LogLevel, appConfig.LogPretty, os.Stderr)

	server := providers.NewChatServer(appConfig, logger)
	if err := server.Activate(); err != nil {
		return err
	}
	defer func() {
		if err := server.Deactivate(); err != nil {
			logger.Error().Err(err).Msg("deactivate failed")
		}
	}()

	httpServer := &fasthttp.Server{
		Handler:     server.Handler(),
		Name:        "chatsync",
		IdleTimeout: 2 * time.Minute,
		Logger:      fasthttpLogger{logger: logger},
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", appConfig.HTTPAddress).Msg("server starting")
		if err := httpServer.ListenAndServe(appConfig.HTTPAddress); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.ShutdownWithContext(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a handshake token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			secret := v.GetString("auth.signing_secret")
			if secret == "" {
				return fmt.Errorf("auth.signing_secret is required")
			}
			if ttl <= 0 {
				ttl = v.GetDuration("auth.token_ttl")
			}
			issuer, err := auth.NewTokenIssuer(auth.Config{
				SigningSecret: []byte(secret),
				Issuer:        v.GetString("auth.issuer"),
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	return cmd
}

// fasthttpLogger routes fasthttp server errors into zerolog.
type fasthttpLogger struct {
	logger zerolog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Warn().Str("component", "fasthttp").Msgf(format, args...)
}
