/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"wagate/pkg/client"
	"wagate/pkg/config"
	"wagate/pkg/logger"
	"wagate/pkg/session"
)

var (
	flagBackend string
	flagAPIURL  string
	flagSession string
	flagToken   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wagate",
	Short: "Drive a WhatsApp HTTP gateway from the terminal",
	Long: `wagate talks to a WPPConnect or whatsapp-web.js gateway server: it pairs
sessions, sends messages, receives webhooks, and opens a chat with one contact.

Configuration comes from config.json, .env and WPP_* environment variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "gateway flavor: wppconnect or wwebjs (WPP_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "gateway base URL (WPP_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagSession, "session", "s", "", "session name (WPP_SESSION)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "session bearer token (WPP_TOKEN)")
}

// app is the per-invocation wiring shared by subcommands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	gateway client.GatewayClient
}

// loadConfig applies flag overrides on top of the loaded configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overrides := []struct {
		flag   string
		target *string
	}{
		{flagBackend, &cfg.Gateway.Backend},
		{flagAPIURL, &cfg.Gateway.APIURL},
		{flagSession, &cfg.Gateway.Session},
		{flagToken, &cfg.Gateway.Token},
	}
	for _, override := range overrides {
		if value := strings.TrimSpace(override.flag); value != "" {
			*override.target = value
		}
	}
	cfg.Gateway.APIURL = strings.TrimRight(cfg.Gateway.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newApp loads configuration, installs the default logger, and builds the
// gateway client unless the command only listens.
func newApp(component string, needGateway bool) (*app, error) {
	return newAppWithLog(component, needGateway, os.Stderr)
}

func newAppWithLog(component string, needGateway bool, logOutput io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	appLogger, err := logger.New(cfg.Logging, logger.Options{
		Writer:  logOutput,
		Backend: cfg.Gateway.Backend,
		Session: cfg.Gateway.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	log := slog.Default().With("component", component)

	if !needGateway {
		return &app{cfg: cfg, log: log}, nil
	}
	if err := cfg.RequireGateway(); err != nil {
		return nil, err
	}

	gateway, err := client.New(cfg.Gateway.ClientOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("initialize gateway client: %w", err)
	}

	return &app{cfg: cfg, log: log, gateway: gateway}, nil
}

func (a *app) controller() *session.Controller {
	return session.NewController(a.gateway, a.cfg.Gateway.PollInterval(), a.log)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	_, err = fmt.Fprintln(w, string(encoded))
	return err
}
