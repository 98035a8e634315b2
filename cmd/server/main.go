package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/relaychat/internal/account"
	"github.com/Tyrowin/relaychat/internal/logging"
	"github.com/Tyrowin/relaychat/internal/server"
)

const Version = "0.2.0"

func main() {
	app := &cli.Command{
		Name:    "relaychat",
		Usage:   "Real-time chat relay for direct and group messages",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the relay server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to a config file (yaml, json or toml)",
					},
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Listen address, e.g. :8080",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Log level (trace, debug, info, warn, error)",
					},
					&cli.BoolFlag{
						Name:  "log-pretty",
						Usage: "Human readable console logs",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Account store directory; empty keeps accounts in memory",
					},
				},
				Action: serve,
			},
			accountsCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Printf("relaychat version %s\n", Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "relaychat: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	_ = godotenv.Load()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	logger.Info().Str("version", Version).Str("port", cfg.Port).Msg("starting relaychat")

	store, err := account.OpenBadgerStore(cfg.DataDir, logger.With().Str("component", "store").Logger())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("close account store")
		}
	}()

	secret, err := jwtSecret(cfg.Auth, logger)
	if err != nil {
		return err
	}
	tokens := account.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
	svc := account.NewService(store, tokens, logger.With().Str("component", "account").Logger())

	opts := []server.Option{
		server.WithAccounts(account.NewHandler(svc, logger.With().Str("component", "account").Logger())),
	}
	if cfg.Auth.RequireToken {
		opts = append(opts, server.WithTokenVerifier(tokens))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, logger, opts...).Run(ctx)
}

// loadConfig layers flags over the config file over the environment.
func loadConfig(c *cli.Command) (server.Config, error) {
	v := viper.New()

	if path := c.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return server.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if c.IsSet("port") {
		v.Set("port", c.String("port"))
	}
	if c.IsSet("log-level") {
		v.Set("log_level", c.String("log-level"))
	}
	if c.IsSet("log-pretty") {
		v.Set("log_pretty", c.Bool("log-pretty"))
	}
	if c.IsSet("data-dir") {
		v.Set("data_dir", c.String("data-dir"))
	}

	return server.LoadConfig(v)
}

// jwtSecret returns the configured signing secret, or a random one that is
// only valid for the lifetime of the process.
func jwtSecret(cfg server.AuthConfig, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	logger.Warn().Msg("no auth.jwt_secret configured; login tokens will not survive a restart")
	return secret, nil
}
