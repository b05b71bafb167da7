// Package messaging defines the pluggable transport abstraction the warming
// engine drives, and its WhatsApp and Twilio implementations.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/warmline/warmline/internal/models"
)

// Constants for transport channel configuration.
const (
	// DefaultChannelBufferSize defines the buffer size for event channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel emits.
	DefaultChannelTimeout = 1 * time.Second
)

// Transport is the messaging capability consumed by the warming orchestrator.
// Inbound events and session status changes are delivered on channels so the
// orchestration loop owns its own suspension points.
type Transport interface {
	// IsReady reports whether an authenticated session is connected.
	IsReady() bool

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) error

	// SendMedia sends image bytes with an optional caption.
	SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) error

	// SendSticker sends webp sticker bytes.
	SendSticker(ctx context.Context, to string, data []byte) error

	// SendReaction sends an emoji reaction to a referenced message.
	SendReaction(ctx context.Context, ref models.MessageRef, emoji string) error

	// SetComposing shows the typing indicator in the recipient's chat.
	SetComposing(ctx context.Context, to string) error

	// Start begins background event processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channels.
	Stop() error

	// Inbound returns the channel of normalized inbound message events.
	Inbound() <-chan models.InboundMessage

	// Status returns the channel of session status changes.
	Status() <-chan models.SessionStatus
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizeRecipient strips non-numeric characters from a phone number and
// validates the remainder has at least 6 digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
