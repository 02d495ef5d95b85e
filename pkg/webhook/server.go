package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"wagate/pkg/bus"
	"wagate/pkg/inbound"
	"wagate/pkg/whatsapp"
)

const (
	DefaultPath         = "/webhook"
	DefaultMaxBodyBytes = 16 << 20
	DefaultDedupTTL     = 5 * time.Minute
)

// Options configures one listener. A negative DedupTTL disables deduplication.
type Options struct {
	Backend       whatsapp.Backend
	Session       string
	Path          string
	IncludeFromMe bool
	DedupTTL      time.Duration
	MaxBodyBytes  int64
}

// Stats are cumulative listener counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Accepted   uint64 `json:"accepted"`
	Duplicates uint64 `json:"duplicates"`
	Ignored    uint64 `json:"ignored"`
	Malformed  uint64 `json:"malformed"`
	Dropped    uint64 `json:"dropped"`
	Pending    int    `json:"pending"`
}

type statusResponse struct {
	Status        string `json:"status"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastState     string `json:"last_session_state,omitempty"`
	Stats         Stats  `json:"stats"`
}

// Server receives gateway webhooks, normalizes them, and hands deliveries to a
// bus without blocking the request.
type Server struct {
	opts   Options
	bus    *bus.MessageBus
	dedup  *Dedup
	log    *slog.Logger
	engine *gin.Engine

	startedAt atomic.Int64
	lastState atomic.Value

	received   atomic.Uint64
	accepted   atomic.Uint64
	duplicates atomic.Uint64
	ignored    atomic.Uint64
	malformed  atomic.Uint64
}

func NewServer(opts Options, messages *bus.MessageBus, log *slog.Logger) (*Server, error) {
	if messages == nil {
		return nil, errors.New("message bus is required")
	}
	if opts.Backend == "" {
		opts.Backend = whatsapp.BackendWPPConnect
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.DedupTTL == 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		opts:  opts,
		bus:   messages,
		dedup: NewDedup(opts.DedupTTL),
		log:   log.With("component", "webhook.server"),
	}
	s.lastState.Store("")

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET(opts.Path, s.handleProbe)
	engine.POST(opts.Path, s.handleWebhook)
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	s.engine = engine

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.startedAt.Store(time.Now().UTC().UnixNano())
	defer s.startedAt.Store(0)

	s.log.Info("Webhook listener started", "address", listener.Addr().String(), "path", s.opts.Path)
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve webhook: %w", err)
	}

	return nil
}

// Stats snapshots the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received:   s.received.Load(),
		Accepted:   s.accepted.Load(),
		Duplicates: s.duplicates.Load(),
		Ignored:    s.ignored.Load(),
		Malformed:  s.malformed.Load(),
		Dropped:    s.bus.Dropped(),
		Pending:    s.bus.Pending(),
	}
}

func (s *Server) handleProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "webhook_active"})
}

func (s *Server) handleWebhook(c *gin.Context) {
	s.received.Add(1)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.Warn("Webhook body too large", "limit", s.opts.MaxBodyBytes)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "error": "body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "read body"})
		return
	}
	if !gjson.ValidBytes(body) {
		s.malformed.Add(1)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid JSON"})
		return
	}

	if update, ok := inbound.DecodeSessionUpdate(body, s.opts.Backend); ok {
		s.lastState.Store(string(update.State))
		s.log.Info("Session state pushed", "state", update.State, "raw", update.Raw)
		s.bus.PublishEvent(c.Request.Context(), bus.Event{
			Type:    bus.EventSessionState,
			Session: s.opts.Session,
			Payload: map[string]string{"state": string(update.State), "raw": update.Raw},
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	msg, err := inbound.Decode(body, s.opts.Backend)
	if err != nil {
		s.malformed.Add(1)
		s.log.Debug("Webhook payload ignored", "reason", whatsapp.DetailFromError(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if msg.FromMe && !s.opts.IncludeFromMe {
		s.ignored.Add(1)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if s.dedup.IsDuplicate(deliveryKey(msg)) {
		s.duplicates.Add(1)
		s.log.Debug("Duplicate webhook delivery", "message_id", msg.MessageID, "event", msg.EventType)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	delivery := bus.Delivery{
		ID:         uuid.NewString(),
		Backend:    s.opts.Backend,
		Session:    s.opts.Session,
		ReceivedAt: time.Now().UTC(),
		Message:    msg,
	}
	if !s.bus.TryPublishInbound(delivery) {
		s.log.Warn("Inbound queue full, dropping message", "message_id", msg.MessageID, "dropped", s.bus.Dropped())
		s.bus.PublishEvent(c.Request.Context(), bus.Event{
			Type:       bus.EventMessageDropped,
			Session:    s.opts.Session,
			ChatID:     msg.Sender,
			DeliveryID: delivery.ID,
		})
		c.JSON(http.StatusOK, gin.H{"status": "dropped"})
		return
	}

	s.accepted.Add(1)
	s.log.Info("Inbound message", "kind", msg.Kind, "sender", msg.Sender, "message_id", msg.MessageID)
	s.bus.PublishEvent(c.Request.Context(), bus.Event{
		Type:       bus.EventMessageReceived,
		Session:    s.opts.Session,
		ChatID:     msg.Sender,
		DeliveryID: delivery.ID,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": delivery.ID})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentStatus("ok"))
}

func (s *Server) handleReady(c *gin.Context) {
	if s.startedAt.Load() == 0 {
		c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready"))
		return
	}

	c.JSON(http.StatusOK, s.currentStatus("ready"))
}

func (s *Server) currentStatus(status string) statusResponse {
	uptime := int64(0)
	if started := s.startedAt.Load(); started != 0 {
		uptime = int64(time.Since(time.Unix(0, started)).Seconds())
	}

	last, _ := s.lastState.Load().(string)
	return statusResponse{
		Status:        status,
		Backend:       string(s.opts.Backend),
		UptimeSeconds: uptime,
		LastState:     last,
		Stats:         s.Stats(),
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Webhook request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// deliveryKey separates acks of one message by ack level so each transition is kept.
func deliveryKey(msg inbound.Message) string {
	id := msg.MessageID
	if id == "" && msg.Poll != nil {
		id = msg.Poll.PollID
	}
	if id == "" {
		return ""
	}

	key := msg.EventType + ":" + id
	if msg.Poll != nil {
		key += ":" + msg.Sender + ":" + strconv.Itoa(len(msg.Poll.SelectedOptions))
		for _, option := range msg.Poll.SelectedOptions {
			key += ":" + option
		}
	}
	if msg.Ack != nil {
		key += ":" + strconv.Itoa(*msg.Ack)
	}

	return key
}
