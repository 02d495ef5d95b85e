package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"wagate/pkg/bus"
	"wagate/pkg/config"
	"wagate/pkg/session"
	"wagate/pkg/webhook"
	"wagate/pkg/whatsapp"
)

var webhookRegister bool

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Receive gateway webhooks and print normalized messages",
	Long: `Starts the webhook listener and writes every accepted message to stdout as
one JSON object per line. With --register the session is started with
WPP_WEBHOOK_URL so the gateway pushes to this listener.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.webhook", webhookRegister)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		messages := bus.NewMessageBus(a.cfg.Webhook.QueueSize)
		defer messages.Close()

		server, err := newWebhookServer(a.cfg, messages, a.log)
		if err != nil {
			return err
		}

		errs := make(chan error, 1)
		go func() { errs <- server.Run(ctx, a.cfg.Webhook.Addr()) }()

		if webhookRegister {
			if err := registerWebhook(ctx, a); err != nil {
				stop()
				<-errs
				return err
			}
		}

		go printDeliveries(ctx, cmd.OutOrStdout(), messages, a.log)

		return <-errs
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)

	webhookCmd.Flags().BoolVar(&webhookRegister, "register", false, "start the session with WPP_WEBHOOK_URL before listening")
}

func newWebhookServer(cfg *config.Config, messages *bus.MessageBus, log *slog.Logger) (*webhook.Server, error) {
	return webhook.NewServer(webhook.Options{
		Backend:       cfg.Gateway.BackendKind(),
		Session:       cfg.Gateway.Session,
		Path:          cfg.Webhook.Path,
		IncludeFromMe: cfg.Webhook.IncludeFromMe,
		DedupTTL:      cfg.Webhook.DedupTTL(),
		MaxBodyBytes:  cfg.Webhook.MaxBodyBytes,
	}, messages, log)
}

// registerWebhook establishes the session so the gateway targets the configured
// webhook URL. A session that still needs pairing is reported, not treated as fatal.
func registerWebhook(ctx context.Context, a *app) error {
	if a.cfg.Webhook.URL == "" {
		return fmt.Errorf("--register needs WPP_WEBHOOK_URL")
	}

	outcome := a.controller().Establish(ctx, session.Options{
		WebhookURL:   a.cfg.Webhook.URL,
		WaitQRCode:   false,
		AutoRegister: a.cfg.Gateway.ShouldAutoRegister(),
	})
	a.log.Info("Session registered", "state", outcome.State, "message", outcome.Message, "webhook", a.cfg.Webhook.URL)

	switch outcome.State {
	case whatsapp.StateError:
		return fmt.Errorf("register webhook: %s", outcome.Message)
	case whatsapp.StateAwaitingQR:
		a.log.Warn("Session is not paired yet; run `wagate session connect` to scan the QR code")
	}

	return nil
}

func printDeliveries(ctx context.Context, w io.Writer, messages *bus.MessageBus, log *slog.Logger) {
	encoder := json.NewEncoder(w)
	for {
		delivery, ok := messages.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if err := encoder.Encode(delivery); err != nil {
			log.Error("Failed to write delivery", "delivery_id", delivery.ID, "error", err)
		}
	}
}
