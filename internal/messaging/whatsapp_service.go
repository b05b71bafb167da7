package messaging

import (
	"context"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/warmline/warmline/internal/models"
	"github.com/warmline/warmline/internal/whatsapp"
)

// WhatsAppTransport implements Transport using the Whatsmeow-based client.
// It normalizes whatsmeow events into InboundMessage/SessionStatus values and
// downloads inbound media eagerly so the orchestrator only sees bytes.
type WhatsAppTransport struct {
	client  *whatsapp.Client
	inbound chan models.InboundMessage
	status  chan models.SessionStatus
	done    chan struct{}
}

// Compile-time check that WhatsAppTransport implements Transport.
var _ Transport = (*WhatsAppTransport)(nil)

// NewWhatsAppTransport creates a transport wrapping the given client.
func NewWhatsAppTransport(client *whatsapp.Client) *WhatsAppTransport {
	return &WhatsAppTransport{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
		status:  make(chan models.SessionStatus, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
}

// IsReady reports whether the WhatsApp session is authenticated and connected.
func (t *WhatsAppTransport) IsReady() bool {
	return t.client != nil && t.client.IsReady()
}

// SendText sends a plain text message.
func (t *WhatsAppTransport) SendText(ctx context.Context, to, body string) error {
	return t.client.SendText(ctx, to, body)
}

// SendMedia sends image bytes with an optional caption.
func (t *WhatsAppTransport) SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	return t.client.SendMedia(ctx, to, data, mimeType, caption)
}

// SendSticker sends webp sticker bytes.
func (t *WhatsAppTransport) SendSticker(ctx context.Context, to string, data []byte) error {
	return t.client.SendSticker(ctx, to, data)
}

// SendReaction sends an emoji reaction to the referenced message.
func (t *WhatsAppTransport) SendReaction(ctx context.Context, ref models.MessageRef, emoji string) error {
	sender := ref.Sender
	if ref.FromMe {
		sender = ""
	}
	return t.client.SendReaction(ctx, ref.Chat, sender, ref.ID, emoji)
}

// SetComposing shows the typing indicator.
func (t *WhatsAppTransport) SetComposing(ctx context.Context, to string) error {
	return t.client.SetComposing(to)
}

// Start registers the whatsmeow event handler and keeps it running until the
// context is cancelled.
func (t *WhatsAppTransport) Start(ctx context.Context) error {
	if t.client == nil || t.client.GetClient() == nil {
		slog.Debug("WhatsAppTransport started without live client (likely test double)")
		return nil
	}

	t.client.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			t.handleMessage(ctx, v)
		case *events.Connected:
			t.emitStatus(models.SessionStatus{State: models.SessionConnected, Time: time.Now()})
		case *events.Disconnected:
			t.emitStatus(models.SessionStatus{State: models.SessionDisconnected, Time: time.Now()})
		case *events.LoggedOut:
			t.emitStatus(models.SessionStatus{State: models.SessionLoggedOut, Time: time.Now()})
		}
	})

	go func() {
		<-ctx.Done()
		slog.Debug("WhatsAppTransport event handling stopping, context cancelled")
	}()
	return nil
}

// Stop closes the event channels.
func (t *WhatsAppTransport) Stop() error {
	close(t.done)
	close(t.inbound)
	close(t.status)
	if t.client != nil {
		t.client.Disconnect()
	}
	slog.Info("WhatsAppTransport stopped")
	return nil
}

// Inbound returns the inbound message channel.
func (t *WhatsAppTransport) Inbound() <-chan models.InboundMessage {
	return t.inbound
}

// Status returns the session status channel.
func (t *WhatsAppTransport) Status() <-chan models.SessionStatus {
	return t.status
}

// handleMessage normalizes a whatsmeow message event. Messages sent by the
// own account are filed under the counterparty (chat) address so both sides
// of a conversation land in one history.
func (t *WhatsAppTransport) handleMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}

	counterparty := evt.Info.Sender.User
	if evt.Info.IsFromMe {
		counterparty = evt.Info.Chat.User
	}

	msg := models.InboundMessage{
		Source:    counterparty,
		To:        evt.Info.Chat.User,
		Timestamp: evt.Info.Timestamp,
		FromMe:    evt.Info.IsFromMe,
		Ref: models.MessageRef{
			Chat:   evt.Info.Chat.User,
			Sender: evt.Info.Sender.User,
			ID:     string(evt.Info.ID),
			FromMe: evt.Info.IsFromMe,
		},
	}

	switch {
	case evt.Message.Conversation != nil:
		msg.Body = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		msg.Body = evt.Message.ExtendedTextMessage.GetText()
	case evt.Message.ImageMessage != nil:
		img := evt.Message.ImageMessage
		msg.HasMedia = true
		msg.MediaType = "image"
		msg.MediaMime = img.GetMimetype()
		msg.Body = img.GetCaption()
		if data, err := t.client.DownloadMedia(ctx, img); err == nil {
			msg.MediaData = data
		} else {
			slog.Warn("failed to download inbound image", "from", counterparty, "error", err)
		}
	case evt.Message.AudioMessage != nil:
		audio := evt.Message.AudioMessage
		msg.HasMedia = true
		msg.MediaType = "audio"
		msg.MediaMime = audio.GetMimetype()
		if data, err := t.client.DownloadMedia(ctx, audio); err == nil {
			msg.MediaData = data
		} else {
			slog.Warn("failed to download inbound audio", "from", counterparty, "error", err)
		}
	default:
		slog.Debug("ignoring unsupported message type", "from", counterparty)
		return
	}

	t.emitInbound(msg)
}

func (t *WhatsAppTransport) emitInbound(msg models.InboundMessage) {
	select {
	case t.inbound <- msg:
	case <-t.done:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("inbound channel blocked, dropping message", "from", msg.Source, "timeout", DefaultChannelTimeout)
	}
}

func (t *WhatsAppTransport) emitStatus(status models.SessionStatus) {
	select {
	case t.status <- status:
	case <-t.done:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("status channel blocked, dropping status", "state", status.State, "timeout", DefaultChannelTimeout)
	}
}
