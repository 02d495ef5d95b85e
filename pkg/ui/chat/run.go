package chat

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wagate/pkg/bus"
	"wagate/pkg/whatsapp"
)

// Options describes the conversation shown by Run.
type Options struct {
	Peer         string
	IsGroup      bool
	Backend      whatsapp.Backend
	Session      string
	InitialState string

	// Bus supplies inbound deliveries and receives typed sends.
	Bus *bus.MessageBus
}

// Run opens a full-screen conversation with one peer until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Bus == nil {
		return errors.New("message bus is required")
	}
	if opts.Peer == "" {
		return errors.New("peer is required")
	}

	events, unsubscribe := opts.Bus.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	program := tea.NewProgram(newModel(ctx, opts, events),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	fmt.Println(renderGoodbyeBanner(opts.Peer))
	return nil
}

func renderGoodbyeBanner(peer string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("231")).
		Background(lipgloss.Color("29")).
		Padding(1, 2)

	return style.Render("Chat with " + peer + " closed")
}
