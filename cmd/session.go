package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"wagate/pkg/qr"
	"wagate/pkg/session"
	"wagate/pkg/whatsapp"
)

var (
	connectWebhook string
	connectWait    bool
	connectOpen    bool
	connectQRPath  string
	waitTimeout    time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and control the gateway session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the normalized session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.session", true)
		if err != nil {
			return err
		}

		result := a.gateway.Status(cmd.Context())
		status := a.gateway.Profile().NormalizeStatus(result)
		if err := printJSON(cmd.OutOrStdout(), statusView{
			State:    status.State,
			Raw:      status.Raw,
			Message:  status.Message,
			Response: result,
		}); err != nil {
			return err
		}

		if status.State == whatsapp.StateError {
			return result.Err()
		}
		return nil
	},
}

var sessionConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Bring the session up, showing a QR code when pairing is needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.session", true)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		webhook := connectWebhook
		if webhook == "" {
			webhook = a.cfg.Webhook.URL
		}

		controller := a.controller()
		outcome := controller.Establish(ctx, session.Options{
			WebhookURL:   webhook,
			WaitQRCode:   true,
			AutoRegister: a.cfg.Gateway.ShouldAutoRegister(),
		})

		view, err := presentOutcome(cmd.ErrOrStderr(), a, outcome)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), view); err != nil {
			return err
		}

		if outcome.State == whatsapp.StateError {
			return errors.New(outcome.Message)
		}
		if !connectWait || outcome.State == whatsapp.StateConnected {
			return nil
		}

		return waitAndPrint(ctx, cmd.OutOrStdout(), controller, a.cfg.Gateway.WaitTimeout())
	},
}

var sessionWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Poll until the session is connected",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.session", true)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		timeout := waitTimeout
		if timeout <= 0 {
			timeout = a.cfg.Gateway.WaitTimeout()
		}

		return waitAndPrint(ctx, cmd.OutOrStdout(), a.controller(), timeout)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionConnectCmd.Flags().StringVar(&connectWebhook, "webhook", "", "webhook URL registered on start (WPP_WEBHOOK_URL)")
	sessionConnectCmd.Flags().BoolVarP(&connectWait, "wait", "w", false, "wait for the QR code to be scanned")
	addQRFlags(sessionConnectCmd)
	sessionWaitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "how long to wait (WPP_WAIT_TIMEOUT_SECONDS)")

	sessionCmd.AddCommand(sessionStatusCmd, sessionConnectCmd, sessionWaitCmd)
	sessionCmd.AddCommand(
		resultCommand("logout", "Log the device out of the session", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.LogoutSession(ctx)
		}),
		resultCommand("close", "Close the session without logging out", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.CloseSession(ctx)
		}),
		resultCommand("check", "Ask the gateway whether the session is connected", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.CheckConnection(ctx)
		}),
		resultCommand("device", "Show the paired device", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.HostDevice(ctx)
		}),
		resultCommand("list", "List sessions known to the gateway", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.ListSessions(ctx)
		}),
		resultCommand("health", "Check the gateway server health", func(ctx context.Context, a *app) whatsapp.Result {
			return a.gateway.Health(ctx)
		}),
	)
}

func addQRFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&connectOpen, "open", false, "open the QR image with the system viewer (QR_OPEN)")
	cmd.Flags().StringVar(&connectQRPath, "qr-path", "", "where to write the QR image (QR_PATH)")
}

type statusView struct {
	State    whatsapp.SessionState `json:"state"`
	Raw      string                `json:"raw"`
	Message  string                `json:"message,omitempty"`
	Response whatsapp.Result       `json:"response"`
}

// outcomeView is an outcome with the QR payload replaced by the saved image path.
type outcomeView struct {
	whatsapp.Outcome
	QRPath string `json:"qr_path,omitempty"`
}

// resultCommand wraps a single gateway call whose Result is printed as JSON.
func resultCommand(use string, short string, call func(context.Context, *app) whatsapp.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cmd."+use, true)
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), call(cmd.Context(), a))
		},
	}
}

func printResult(w io.Writer, result whatsapp.Result) error {
	if err := printJSON(w, result); err != nil {
		return err
	}

	return result.Err()
}

func presentOutcome(w io.Writer, a *app, outcome whatsapp.Outcome) (outcomeView, error) {
	view := outcomeView{Outcome: outcome}
	if outcome.State != whatsapp.StateAwaitingQR {
		return view, nil
	}

	path := connectQRPath
	if path == "" {
		path = a.cfg.QR.Path
	}
	presenter := qr.Presenter{
		Out:  w,
		Path: path,
		Open: connectOpen || a.cfg.QR.Open,
		Log:  a.log,
	}

	saved, err := presenter.Present(outcome)
	if err != nil {
		return view, fmt.Errorf("present QR code: %w", err)
	}
	view.QRPath = saved
	view.QRCodeBase64 = ""

	return view, nil
}

func waitAndPrint(ctx context.Context, w io.Writer, controller *session.Controller, timeout time.Duration) error {
	connection, err := controller.WaitForConnection(ctx, timeout)
	if printErr := printJSON(w, connection); printErr != nil {
		return printErr
	}

	return err
}
