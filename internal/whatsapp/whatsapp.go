// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in Warmline.
//
// It provides the send surface the warming engine drives (text, media,
// stickers, reactions, composing presence) and media download for inbound
// events.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/warmline/warmline/internal/store"
)

// Constants for WhatsApp client configuration.
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database.
	DefaultSQLitePath = "/var/lib/warmline/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the client to use a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates a new WhatsApp client, applying any provided options, and
// performs the login flow (QR or numeric code) when no session is stored.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// IsReady reports whether the client has an authenticated, connected session.
func (c *Client) IsReady() bool {
	return c.waClient != nil && c.waClient.IsConnected() && c.waClient.IsLoggedIn()
}

// toJID builds a user JID from a bare number/identifier.
func toJID(to string) types.JID {
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err == nil {
			return jid
		}
	}
	return types.NewJID(to, JIDSuffix)
}

// SendText sends a plain text message to the recipient.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	if err := c.checkSendable(to); err != nil {
		return err
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, toJID(to), msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp text sent", "to", to, "body_length", len(body))
	return nil
}

// SendMedia uploads the bytes and sends them as an image message with an
// optional caption.
func (c *Client) SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	if err := c.checkSendable(to); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("media payload cannot be empty")
	}

	uploaded, err := c.waClient.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload media for %s: %w", to, err)
	}
	img := &waE2E.ImageMessage{
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}
	if caption != "" {
		img.Caption = proto.String(caption)
	}
	if _, err := c.waClient.SendMessage(ctx, toJID(to), &waE2E.Message{ImageMessage: img}); err != nil {
		return fmt.Errorf("failed to send media to %s: %w", to, err)
	}
	slog.Debug("WhatsApp media sent", "to", to, "mime", mimeType, "size", len(data))
	return nil
}

// SendSticker uploads webp bytes and sends them as a sticker message.
func (c *Client) SendSticker(ctx context.Context, to string, data []byte) error {
	if err := c.checkSendable(to); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("sticker payload cannot be empty")
	}

	uploaded, err := c.waClient.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload sticker for %s: %w", to, err)
	}
	sticker := &waE2E.StickerMessage{
		Mimetype:      proto.String("image/webp"),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}
	if _, err := c.waClient.SendMessage(ctx, toJID(to), &waE2E.Message{StickerMessage: sticker}); err != nil {
		return fmt.Errorf("failed to send sticker to %s: %w", to, err)
	}
	slog.Debug("WhatsApp sticker sent", "to", to, "size", len(data))
	return nil
}

// SendReaction sends an emoji reaction to a previously received message.
func (c *Client) SendReaction(ctx context.Context, chat, sender, messageID, emoji string) error {
	if err := c.checkSendable(chat); err != nil {
		return err
	}
	senderJID := toJID(sender)
	if sender == "" && c.waClient.Store.ID != nil {
		// Reacting to an own message: the reaction targets our own JID.
		senderJID = *c.waClient.Store.ID
	}
	msg := c.waClient.BuildReaction(toJID(chat), senderJID, types.MessageID(messageID), emoji)
	if _, err := c.waClient.SendMessage(ctx, toJID(chat), msg); err != nil {
		return fmt.Errorf("failed to send reaction to %s: %w", chat, err)
	}
	slog.Debug("WhatsApp reaction sent", "chat", chat, "emoji", emoji)
	return nil
}

// SetComposing shows the typing indicator in the recipient's chat.
func (c *Client) SetComposing(to string) error {
	if err := c.checkSendable(to); err != nil {
		return err
	}
	if err := c.waClient.SendChatPresence(toJID(to), types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("failed to set composing for %s: %w", to, err)
	}
	return nil
}

// ClearComposing pauses the typing indicator.
func (c *Client) ClearComposing(to string) error {
	if err := c.checkSendable(to); err != nil {
		return err
	}
	return c.waClient.SendChatPresence(toJID(to), types.ChatPresencePaused, types.ChatPresenceMediaText)
}

// DownloadMedia downloads the payload of a downloadable inbound message.
func (c *Client) DownloadMedia(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	if c.waClient == nil {
		return nil, fmt.Errorf("whatsapp client not initialized")
	}
	data, err := c.waClient.Download(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

func (c *Client) checkSendable(to string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the connection to the WhatsApp servers.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}
