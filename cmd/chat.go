package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"wagate/pkg/bus"
	"wagate/pkg/channel"
	"wagate/pkg/session"
	"wagate/pkg/ui/chat"
	"wagate/pkg/whatsapp"
)

var (
	chatGroup   bool
	chatLogFile string
)

var chatCmd = &cobra.Command{
	Use:   "chat PHONE",
	Short: "Open a terminal conversation with one contact or group",
	Long: `Starts the webhook listener, makes sure the session is paired and pointed at
it, then opens a full-screen conversation. Type text to send it, or
/file PATH and /image PATH [caption] to attach media. /quit leaves.

Logs go to --log-file while the conversation is open.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, err := os.OpenFile(chatLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()

		a, err := newAppWithLog("cmd.chat", true, logFile)
		if err != nil {
			return err
		}

		peer := args[0]
		if !chatGroup {
			peer = whatsapp.StripContactSuffix(whatsapp.ContactChatID(peer))
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		messages := bus.NewMessageBus(a.cfg.Webhook.QueueSize)
		defer messages.Close()

		server, err := newWebhookServer(a.cfg, messages, a.log)
		if err != nil {
			return err
		}
		sender, err := channel.NewSender(a.gateway, messages, a.log)
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		defer wg.Wait()
		defer stop()

		listenErr := make(chan error, 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			listenErr <- server.Run(ctx, a.cfg.Webhook.Addr())
		}()
		go func() {
			defer wg.Done()
			_ = sender.Run(ctx)
		}()

		state, err := ensureConnected(ctx, cmd.OutOrStdout(), a)
		if err != nil {
			return err
		}

		select {
		case err := <-listenErr:
			if err != nil {
				return err
			}
			return errors.New("webhook listener stopped")
		default:
		}

		return chat.Run(ctx, chat.Options{
			Peer:         peer,
			IsGroup:      chatGroup,
			Backend:      a.gateway.Backend(),
			Session:      a.cfg.Gateway.Session,
			InitialState: string(state),
			Bus:          messages,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().BoolVarP(&chatGroup, "group", "g", false, "PHONE is a group id")
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "wagate-chat.log", "where logs go while the conversation is open")
	addQRFlags(chatCmd)
}

// ensureConnected registers the webhook and, when pairing is needed, shows the
// QR code and waits for the scan.
func ensureConnected(ctx context.Context, out io.Writer, a *app) (whatsapp.SessionState, error) {
	controller := a.controller()
	outcome := controller.Establish(ctx, session.Options{
		WebhookURL:   a.cfg.Webhook.URL,
		WaitQRCode:   true,
		AutoRegister: a.cfg.Gateway.ShouldAutoRegister(),
	})

	switch outcome.State {
	case whatsapp.StateConnected:
		return outcome.State, nil
	case whatsapp.StateAwaitingQR:
		view, err := presentOutcome(out, a, outcome)
		if err != nil {
			return outcome.State, err
		}
		fmt.Fprintf(out, "Scan the QR code (saved to %s) to continue...\n", view.QRPath)

		connection, err := controller.WaitForConnection(ctx, a.cfg.Gateway.WaitTimeout())
		if err != nil {
			return connection.LastState, fmt.Errorf("session not connected: %w", err)
		}
		return connection.LastState, nil
	default:
		return outcome.State, fmt.Errorf("session %s: %s", outcome.State, outcome.Message)
	}
}
