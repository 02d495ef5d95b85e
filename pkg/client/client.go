package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wagate/pkg/backend"
	"wagate/pkg/media"
	"wagate/pkg/transport"
	"wagate/pkg/whatsapp"
)

// GatewayClient is the verb-oriented surface shared by both backend flavors.
// Every operation reports through whatsapp.Result; none of them returns an error.
type GatewayClient interface {
	Backend() whatsapp.Backend
	Profile() backend.Profile
	Credentials() *whatsapp.Credentials

	// Session
	Status(ctx context.Context) whatsapp.Result
	ListSessions(ctx context.Context) whatsapp.Result
	CheckConnection(ctx context.Context) whatsapp.Result
	StartSession(ctx context.Context, webhook string, waitQRCode bool) whatsapp.Result
	CloseSession(ctx context.Context) whatsapp.Result
	LogoutSession(ctx context.Context) whatsapp.Result
	QRCode(ctx context.Context) whatsapp.Result
	HostDevice(ctx context.Context) whatsapp.Result
	ProfileExists(ctx context.Context) whatsapp.Result
	CreateSession(ctx context.Context) whatsapp.Result

	// Messaging
	SendMessage(ctx context.Context, msg TextMessage) whatsapp.Result
	SendReply(ctx context.Context, phone string, message string, messageID string, isGroup bool) whatsapp.Result
	SendLocation(ctx context.Context, loc LocationMessage) whatsapp.Result
	SendContact(ctx context.Context, phone string, contactID string, isGroup bool) whatsapp.Result
	SendImage(ctx context.Context, file FileMessage) whatsapp.Result
	SendFile(ctx context.Context, file FileMessage) whatsapp.Result
	SendFileBase64(ctx context.Context, file Base64File) whatsapp.Result
	SendVoice(ctx context.Context, phone string, fileURL string, isGroup bool, quotedMessageID string) whatsapp.Result
	SendVoiceBase64(ctx context.Context, phone string, data string, isGroup bool) whatsapp.Result
	SendPoll(ctx context.Context, poll PollMessage) whatsapp.Result
	SendStatus(ctx context.Context, phone string, message string, isGroup bool, messageID string) whatsapp.Result
	SendLinkPreview(ctx context.Context, phone string, url string, caption string, isGroup bool) whatsapp.Result
	SendMentioned(ctx context.Context, phone string, message string, mentioned []string, isGroup bool) whatsapp.Result
	SendButtons(ctx context.Context, phone string, text string, buttons []map[string]any, isGroup bool) whatsapp.Result
	SendList(ctx context.Context, list ListMessage) whatsapp.Result
	SendOrder(ctx context.Context, phone string, items []map[string]any, isGroup bool, options map[string]any) whatsapp.Result

	// Groups
	CreateGroup(ctx context.Context, name string, participants []string) whatsapp.Result
	GroupMembers(ctx context.Context, groupID string) whatsapp.Result
	LeaveGroup(ctx context.Context, groupID string) whatsapp.Result
	AddParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result
	RemoveParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result
	PromoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result
	DemoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result
	SetGroupSubject(ctx context.Context, groupID string, title string) whatsapp.Result
	SetGroupDescription(ctx context.Context, groupID string, description string) whatsapp.Result

	// Contacts
	Contacts(ctx context.Context) whatsapp.Result
	Contact(ctx context.Context, phone string) whatsapp.Result
	BlockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result
	UnblockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result
	Blocklist(ctx context.Context) whatsapp.Result

	// Chats
	ListChats(ctx context.Context, options map[string]any) whatsapp.Result
	ChatByID(ctx context.Context, phone string) whatsapp.Result
	ClearChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result
	ArchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result
	UnarchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result
	SetTyping(ctx context.Context, phone string, isGroup bool, value bool) whatsapp.Result
	SetRecording(ctx context.Context, phone string, isGroup bool, duration int, value bool) whatsapp.Result

	// Device and messages
	BatteryLevel(ctx context.Context) whatsapp.Result
	MarkUnread(ctx context.Context, chatID string) whatsapp.Result
	MarkSeen(ctx context.Context, chatID string) whatsapp.Result
	ProfilePicture(ctx context.Context, phone string) whatsapp.Result
	MessageByID(ctx context.Context, messageID string) whatsapp.Result
	ForwardMessages(ctx context.Context, phone string, messageIDs []string, isGroup bool) whatsapp.Result
	DeleteMessage(ctx context.Context, req DeleteRequest) whatsapp.Result

	// Profile
	ChangeUsername(ctx context.Context, name string) whatsapp.Result
	SetProfileStatus(ctx context.Context, status string) whatsapp.Result
	SetProfilePicture(ctx context.Context, data []byte) whatsapp.Result

	// Catalog
	AddProduct(ctx context.Context, product map[string]any) whatsapp.Result
	EditProduct(ctx context.Context, productID string, options map[string]any) whatsapp.Result
	DeleteProduct(ctx context.Context, productID string) whatsapp.Result
	ChangeProductImage(ctx context.Context, productID string, base64Image string) whatsapp.Result
	Products(ctx context.Context, phone string, qnt int) whatsapp.Result

	// Misc
	Health(ctx context.Context) whatsapp.Result
	Metrics(ctx context.Context) whatsapp.Result
}

// TextMessage is a plain text send. A MessageID turns it into a reply.
type TextMessage struct {
	Phone        string
	Message      string
	IsGroup      bool
	IsNewsletter bool
	MessageID    string
	Options      map[string]any
}

type LocationMessage struct {
	Phone     string
	Latitude  float64
	Longitude float64
	Title     string
	IsGroup   bool
}

// FileMessage sends a file fetched from FileURL (http(s), file:// or a local path).
type FileMessage struct {
	Phone        string
	FileURL      string
	Filename     string
	Caption      string
	IsGroup      bool
	IsNewsletter bool
	IsLid        bool
}

// Base64File sends already encoded content; Data may carry a data-URL prefix.
type Base64File struct {
	Phone        string
	Data         string
	Filename     string
	Caption      string
	IsGroup      bool
	IsNewsletter bool
	IsLid        bool
}

// PollMessage sends a poll. SelectableCount above one allows multiple answers.
type PollMessage struct {
	Phone           string
	Name            string
	Choices         []string
	SelectableCount int
	IsGroup         bool
}

type ListMessage struct {
	Phone       string
	Description string
	ButtonText  string
	Sections    []map[string]any
	IsGroup     bool
}

type DeleteRequest struct {
	Phone               string
	MessageID           string
	IsGroup             bool
	OnlyLocal           bool
	DeleteMediaInDevice bool
}

const TokenTimeout = 30 * time.Second

// Options configures a client.
type Options struct {
	Backend         whatsapp.Backend
	APIURL          string
	Session         string
	Token           string
	SecretKey       string
	Timeout         time.Duration
	DownloadTimeout time.Duration

	// Transport overrides the default resty transport.
	Transport transport.Transport
}

// New builds the client for opts.Backend.
func New(opts Options, log *slog.Logger) (GatewayClient, error) {
	if log == nil {
		log = slog.Default()
	}

	profile, err := backend.For(opts.Backend)
	if err != nil {
		return nil, err
	}

	creds := whatsapp.NewCredentials(opts.APIURL, opts.Session, opts.Token, opts.SecretKey)
	if creds.APIURL == "" {
		return nil, fmt.Errorf("gateway api url is required")
	}
	if creds.SessionID == "" {
		return nil, fmt.Errorf("gateway session is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewHTTP(timeout, log)
	}

	req := &requester{
		creds:     creds,
		profile:   profile,
		transport: tr,
		timeout:   timeout,
		log:       log.With("component", "client."+string(profile.Backend())),
	}
	fetcher := media.NewFetcher(tr, opts.DownloadTimeout, log)
	detector := media.NewDetector(tr, timeout, log)

	switch profile.Backend() {
	case whatsapp.BackendWWebJS:
		return &WWebJS{requester: req, fetcher: fetcher, detector: detector}, nil
	default:
		return &WPPConnect{requester: req, fetcher: fetcher}, nil
	}
}
