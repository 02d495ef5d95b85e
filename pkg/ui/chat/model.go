package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wagate/pkg/bus"
	"wagate/pkg/whatsapp"
)

type role string

const (
	roleYou    role = "you"
	rolePeer   role = "peer"
	roleSystem role = "system"
	roleError  role = "error"
)

type chatLine struct {
	role    role
	content string
	at      time.Time
}

type deliveryMsg struct {
	delivery bus.Delivery
	ok       bool
}

type eventMsg struct {
	event bus.Event
	ok    bool
}

type queuedMsg struct {
	out bus.OutboundMessage
	err error
}

type model struct {
	ctx    context.Context
	opts   Options
	peerID string
	events <-chan bus.Event

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	lines     []chatLine
	width     int
	height    int
	isReady   bool
	pending   int
	lastErr   string
	state     string
	followLog bool
	received  int
	sent      int
}

func newModel(ctx context.Context, opts Options, events <-chan bus.Event) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Type a message, /file <path> or /image <path>"
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		opts:      opts,
		peerID:    whatsapp.ChatKey(opts.Peer, opts.IsGroup),
		events:    events,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		state:     strings.TrimSpace(opts.InitialState),
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitDelivery(), m.waitEvent())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.input.SetValue("")
			out, err := parseInput(text, m.opts.Peer, m.opts.IsGroup)
			if err != nil {
				m.lastErr = err.Error()
				m.append(roleError, err.Error())
				return m, nil
			}

			m.lastErr = ""
			m.pending++
			m.followLog = true
			m.append(roleYou, describeOutbound(out))
			return m, tea.Batch(m.spinner.Tick, m.queue(out))
		}
	case deliveryMsg:
		if !typed.ok {
			return m, nil
		}
		if matchesPeer(typed.delivery, m.peerID) {
			m.received++
			m.append(rolePeer, renderDelivery(typed.delivery))
		}
		return m, m.waitDelivery()
	case eventMsg:
		if !typed.ok {
			return m, nil
		}
		m.applyEvent(typed.event)
		return m, m.waitEvent()
	case queuedMsg:
		if typed.err != nil {
			m.pending = max(0, m.pending-1)
			m.lastErr = typed.err.Error()
			m.append(roleError, typed.err.Error())
		}
		return m, nil
	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) applyEvent(event bus.Event) {
	switch event.Type {
	case bus.EventSessionState:
		if state := event.Payload["state"]; state != "" && state != m.state {
			m.state = state
			m.append(roleSystem, "session "+state)
		}
	case bus.EventOutboundSent:
		if event.ChatID != m.peerID {
			return
		}
		m.pending = max(0, m.pending-1)
		m.sent++
		m.lastErr = ""
	case bus.EventOutboundFailed:
		if event.ChatID != m.peerID {
			return
		}
		m.pending = max(0, m.pending-1)
		m.lastErr = event.Error
		m.append(roleError, "send failed: "+event.Error)
	case bus.EventMessageDropped:
		m.append(roleSystem, "inbound queue full, a message was dropped")
	}
}

func (m *model) append(who role, content string) {
	m.lines = append(m.lines, chatLine{role: who, content: content, at: time.Now()})
	m.refreshViewport(who == roleYou)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("💬 WhatsApp · " + displayOrNA(m.opts.Peer))
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"backend:%s · session:%s · state:%s · received:%d · sent:%d",
		displayOrNA(string(m.opts.Backend)),
		displayOrNA(m.opts.Session),
		displayOrNA(m.state),
		m.received,
		m.sent,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · /file /image attach · PgUp/PgDn scroll · Ctrl+C/Esc quit")
	if m.pending > 0 {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s sending %d...", m.spinner.View(), m.pending))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last send failed: " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(/quit to leave)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.lines))
	for _, item := range m.lines {
		stamp := item.at.Format("15:04")
		switch item.role {
		case roleYou:
			sections = append(sections, m.renderCard(
				m.theme.youTitle.Render("you "+stamp),
				m.theme.youBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case rolePeer:
			sections = append(sections, m.renderCard(
				m.theme.peerTitle.Render(displayOrNA(m.opts.Peer)+" "+stamp),
				m.theme.peerBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case roleSystem:
			sections = append(sections, m.theme.systemLine.Render("· "+item.content))
		case roleError:
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("error "+stamp),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func (m *model) waitDelivery() tea.Cmd {
	if m.opts.Bus == nil {
		return nil
	}

	return func() tea.Msg {
		delivery, ok := m.opts.Bus.ConsumeInbound(m.ctx)
		return deliveryMsg{delivery: delivery, ok: ok}
	}
}

func (m *model) waitEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}

	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		return eventMsg{event: event, ok: ok}
	}
}

func (m *model) queue(out bus.OutboundMessage) tea.Cmd {
	ctx := m.ctx
	messages := m.opts.Bus
	return func() tea.Msg {
		if messages == nil || !messages.PublishOutbound(ctx, out) {
			return queuedMsg{out: out, err: errors.New("outbound queue closed")}
		}
		return queuedMsg{out: out}
	}
}

// parseInput turns a typed line into an outbound request for peer.
func parseInput(text string, peer string, isGroup bool) (bus.OutboundMessage, error) {
	out := bus.OutboundMessage{Kind: bus.OutboundText, Phone: peer, IsGroup: isGroup, Text: text}

	command, rest, _ := strings.Cut(text, " ")
	switch strings.ToLower(command) {
	case "/file", "/image":
		location := strings.TrimSpace(rest)
		if location == "" {
			return bus.OutboundMessage{}, fmt.Errorf("usage: %s <path or url> [caption]", command)
		}
		location, caption, _ := strings.Cut(location, " ")
		out.Kind = bus.OutboundFile
		if strings.EqualFold(command, "/image") {
			out.Kind = bus.OutboundImage
		}
		out.Location = location
		out.Text = strings.TrimSpace(caption)
	}

	return out, nil
}

func describeOutbound(out bus.OutboundMessage) string {
	switch out.Kind {
	case bus.OutboundFile, bus.OutboundImage:
		label := "[" + string(out.Kind) + "] " + out.Location
		if out.Text != "" {
			label += "\n" + out.Text
		}
		return label
	default:
		return out.Text
	}
}

func renderDelivery(delivery bus.Delivery) string {
	msg := delivery.Message
	text := msg.Text()
	if msg.IsGroup && msg.Author != "" {
		author := msg.Author
		if msg.SenderName != "" {
			author = msg.SenderName
		}
		text = author + ": " + text
	}
	if msg.QuotedMessageID != "" {
		text = "↪ " + text
	}

	return text
}

func matchesPeer(delivery bus.Delivery, peerID string) bool {
	if peerID == "" {
		return true
	}

	msg := delivery.Message
	if msg.FromMe {
		return msg.Receiver == peerID
	}

	return msg.Sender == peerID
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", "/quit", ":q":
		return true
	default:
		return false
	}
}
