package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wagate/pkg/config"
	"wagate/pkg/session"
	"wagate/pkg/whatsapp"
)

var (
	tokenSave bool
	tokenWait bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a session token and start pairing",
	Long: `Generates a bearer token with the server secret key, starts the session
without a webhook, and shows the pairing QR code. With --save the session and
token are written to the .env file used by later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cmd.token", true)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		created := a.gateway.CreateSession(ctx)
		token := strings.TrimSpace(created.Get("token").String())
		if !created.OK {
			if err := printJSON(cmd.OutOrStdout(), created); err != nil {
				return err
			}
			return fmt.Errorf("generate token: %w", created.Err())
		}
		if token != "" {
			a.gateway.Credentials().SetToken(token)
			a.log.Info("Token generated", "session", a.cfg.Gateway.Session, "token", token)
		}

		controller := a.controller()
		outcome := controller.Establish(ctx, session.Options{WaitQRCode: true, AutoRegister: true})
		outcome.Token = token

		view, err := presentOutcome(cmd.ErrOrStderr(), a, outcome)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), view); err != nil {
			return err
		}

		if tokenSave && token != "" {
			path := config.EnvFile()
			if err := config.SaveCredentials(path, a.cfg.Gateway.Session, token); err != nil {
				return err
			}
			a.log.Info("Credentials saved", "path", path)
		}

		if outcome.State == whatsapp.StateError {
			return errors.New(outcome.Message)
		}
		if !tokenWait || outcome.State == whatsapp.StateConnected {
			return nil
		}

		return waitAndPrint(ctx, cmd.OutOrStdout(), controller, a.cfg.Gateway.WaitTimeout())
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "write WPP_SESSION and WPP_TOKEN to the .env file")
	tokenCmd.Flags().BoolVarP(&tokenWait, "wait", "w", false, "wait for the QR code to be scanned")
	addQRFlags(tokenCmd)
}
