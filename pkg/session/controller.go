package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wagate/pkg/backend"
	"wagate/pkg/client"
	"wagate/pkg/media"
	"wagate/pkg/whatsapp"
)

const (
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 60 * time.Second

	messageConnected    = "Session is already active and connected."
	messageAwaitingQR   = "Session created or started. Awaiting QR Code scan."
	messageNoToken      = "Could not create instance or get token."
	messageQRMissing    = "Session started but no QR code is available yet."
	statusMessagePrefix = "Session status: "
)

// ErrWaitTimeout is returned when the session does not connect before the wait deadline.
var ErrWaitTimeout = errors.New("timed out waiting for session connection")

// Options controls one establish attempt.
type Options struct {
	// WebhookURL is registered on start when the backend accepts one.
	WebhookURL   string
	WaitQRCode   bool
	AutoRegister bool
}

// Connection is the result of waiting for a paired session.
type Connection struct {
	Connected bool                  `json:"connected"`
	Phone     string                `json:"phone,omitempty"`
	LastState whatsapp.SessionState `json:"last_state"`
	Device    json.RawMessage       `json:"device,omitempty"`
}

// Controller reconciles backend status into the canonical session lifecycle.
type Controller struct {
	client       client.GatewayClient
	profile      backend.Profile
	pollInterval time.Duration
	log          *slog.Logger
}

func NewController(gateway client.GatewayClient, pollInterval time.Duration, log *slog.Logger) *Controller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		client:       gateway,
		profile:      gateway.Profile(),
		pollInterval: pollInterval,
		log:          log.With("component", "session.controller"),
	}
}

// Establish polls status, re-authenticates at most once, and either confirms the
// connected device or starts the session and resolves a QR code.
func (c *Controller) Establish(ctx context.Context, opts Options) whatsapp.Outcome {
	result := c.client.Status(ctx)
	status := c.profile.NormalizeStatus(result)
	c.log.Info("Session status", "state", status.State, "raw", status.Raw, "recreate", status.Recreate)

	if status.AuthFailure {
		c.log.Info("Session unauthorized, requesting token")

		created := c.client.CreateSession(ctx)
		token := strings.TrimSpace(created.Get("token").String())
		if token == "" && !created.Get("ok").Bool() {
			c.log.Error("Token creation failed", "category", created.Category, "error", created.Error)
			return whatsapp.Outcome{
				State:       whatsapp.StateError,
				Message:     messageNoToken,
				Session:     c.sessionID(),
				ErrorDetail: detail(created),
			}
		}
		if token != "" {
			c.client.Credentials().SetToken(token)
		}

		result = c.client.Status(ctx)
		status = c.profile.NormalizeStatus(result)
		c.log.Info("Session status after token refresh", "state", status.State, "raw", status.Raw, "recreate", status.Recreate)
	}

	if status.State == whatsapp.StateConnected {
		return c.establishConnected(ctx, opts)
	}

	if status.State.CanRegister() && opts.AutoRegister {
		start := c.client.StartSession(ctx, opts.WebhookURL, opts.WaitQRCode)
		startStatus := c.profile.NormalizeStatus(start)
		if startStatus.State == whatsapp.StateConnected {
			return c.connectedOutcome(ctx)
		}

		return c.awaitQR(ctx, start, status.State)
	}

	return c.verbatim(status, result)
}

// establishConnected refreshes the webhook on backends that take one at start.
func (c *Controller) establishConnected(ctx context.Context, opts Options) whatsapp.Outcome {
	if !c.profile.RefreshesWebhook() {
		return c.connectedOutcome(ctx)
	}

	start := c.client.StartSession(ctx, opts.WebhookURL, opts.WaitQRCode)
	startStatus := c.profile.NormalizeStatus(start)
	if startStatus.State == whatsapp.StateConnected {
		return c.connectedOutcome(ctx)
	}

	c.log.Warn("Start session did not confirm connection", "state", startStatus.State, "raw", startStatus.Raw)
	if startStatus.State.CanRegister() && opts.AutoRegister {
		return c.awaitQR(ctx, start, startStatus.State)
	}

	return c.verbatim(startStatus, start)
}

func (c *Controller) connectedOutcome(ctx context.Context) whatsapp.Outcome {
	device := c.client.HostDevice(ctx)
	phone := c.profile.DeviceIdentity(device.Body)
	if !device.OK {
		c.log.Warn("Host device lookup failed", "category", device.Category, "error", device.Error)
	}

	return whatsapp.Outcome{
		State:   whatsapp.StateConnected,
		Message: messageConnected,
		Session: c.sessionID(),
		Device:  &whatsapp.Device{Phone: phone, Info: detail(device)},
		Token:   c.client.Credentials().Token(),
	}
}

// awaitQR prefers a QR embedded in the start response over the QR endpoint.
func (c *Controller) awaitQR(ctx context.Context, start whatsapp.Result, fallback whatsapp.SessionState) whatsapp.Outcome {
	qr, text := qrFields(start, "qrcode")
	source := start
	if qr == "" {
		source = c.client.QRCode(ctx)
		qr, text = qrFields(source, "qrcode_base64", "qrcode", "qr")
		if text == "" {
			_, text = qrFields(start)
		}
	}

	if qr == "" {
		state := fallback
		if state == whatsapp.StateAwaitingQR {
			state = whatsapp.StateUnknown
		}
		c.log.Warn("No QR code available", "state", state)
		return whatsapp.Outcome{
			State:       state,
			Message:     messageQRMissing,
			Session:     c.sessionID(),
			ErrorDetail: detail(source),
		}
	}

	c.log.Info("Session awaiting QR scan")
	return whatsapp.Outcome{
		State:        whatsapp.StateAwaitingQR,
		Message:      messageAwaitingQR,
		Session:      c.sessionID(),
		QRCodeBase64: qr,
		QRCodeText:   text,
		Token:        c.client.Credentials().Token(),
	}
}

func (c *Controller) verbatim(status backend.Status, result whatsapp.Result) whatsapp.Outcome {
	raw := status.Raw
	if raw == "" {
		raw = status.State.String()
	}

	outcome := whatsapp.Outcome{
		State:       status.State,
		Message:     statusMessagePrefix + raw,
		Session:     c.sessionID(),
		ErrorDetail: detail(result),
	}
	if status.State == whatsapp.StateAwaitingQR {
		outcome.QRCodeBase64, outcome.QRCodeText = qrFields(result, "qrcode")
		if outcome.QRCodeBase64 == "" {
			outcome.State = whatsapp.StateUnknown
		}
	}

	return outcome
}

// WaitForConnection polls status at the controller interval until the session
// reports CONNECTED, the timeout elapses, or ctx is cancelled.
func (c *Controller) WaitForConnection(ctx context.Context, timeout time.Duration) (Connection, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	last := Connection{LastState: whatsapp.StateUnknown}

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return last, fmt.Errorf("wait for connection: %w", ctxErr)
			}
			return last, ErrWaitTimeout
		}

		status := c.profile.NormalizeStatus(c.client.Status(waitCtx))
		if status.State != last.LastState {
			c.log.Info("Waiting for connection", "state", status.State, "raw", status.Raw)
		}
		last.LastState = status.State

		if status.State == whatsapp.StateConnected {
			device := c.client.HostDevice(waitCtx)
			return Connection{
				Connected: true,
				Phone:     c.profile.DeviceIdentity(device.Body),
				LastState: status.State,
				Device:    detail(device),
			}, nil
		}
	}
}

func (c *Controller) sessionID() string {
	return c.client.Credentials().SessionID
}

// qrFields reads the first non-empty QR among keys, without any data-URL prefix,
// plus the pairing text the backend reports as urlcode.
func qrFields(result whatsapp.Result, keys ...string) (string, string) {
	text := strings.TrimSpace(result.Get("urlcode").String())
	for _, key := range keys {
		value := strings.TrimSpace(result.Get(key).String())
		if value == "" {
			continue
		}
		_, payload := media.SplitDataURL(value)
		if payload = strings.TrimSpace(payload); payload != "" {
			return payload, text
		}
	}

	return "", text
}

func detail(result whatsapp.Result) json.RawMessage {
	encoded, err := result.MarshalJSON()
	if err != nil {
		return nil
	}

	return encoded
}
