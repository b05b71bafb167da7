package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/warmline/warmline/internal/models"
)

// TwilioOpts holds configuration for the Twilio-backed transport.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string // WhatsApp number in "whatsapp:+1234567890" format
}

// TwilioOption defines a configuration option for the Twilio transport.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID (overrides $TWILIO_ACCOUNT_SID).
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token (overrides $TWILIO_AUTH_TOKEN).
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending WhatsApp number (overrides $TWILIO_FROM_NUMBER).
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// messageCreator is the slice of the Twilio REST API the transport uses,
// extracted so tests can fake it.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioTransport implements Transport over the Twilio WhatsApp API. Twilio
// exposes no sticker, reaction, or typing-indicator API, so those operations
// return models.ErrUnsupportedByCarrier and the orchestrator degrades to text.
// Inbound delivery relies on webhooks outside this process, so the inbound
// channel stays silent; the transport is outbound-only.
type TwilioTransport struct {
	api     messageCreator
	from    string
	inbound chan models.InboundMessage
	status  chan models.SessionStatus

	mu      sync.Mutex
	stopped bool
}

// Compile-time check that TwilioTransport implements Transport.
var _ Transport = (*TwilioTransport)(nil)

// NewTwilioTransport creates a transport from options, falling back to the
// TWILIO_* environment variables.
func NewTwilioTransport(opts ...TwilioOption) (*TwilioTransport, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioTransport{
		api:     client.Api,
		from:    cfg.FromNumber,
		inbound: make(chan models.InboundMessage),
		status:  make(chan models.SessionStatus),
	}, nil
}

// IsReady always reports true once constructed; Twilio is a stateless REST API.
func (t *TwilioTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// SendText sends a WhatsApp text message through the Twilio API.
func (t *TwilioTransport) SendText(ctx context.Context, to, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(t.from)
	params.SetBody(body)

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Twilio message sent", "to", canonical)
	return nil
}

// SendMedia sends a media message; Twilio requires a public media URL, so raw
// bytes cannot be delivered and the caption is sent as text instead.
func (t *TwilioTransport) SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	if caption == "" {
		return models.ErrUnsupportedByCarrier
	}
	slog.Debug("Twilio media degraded to caption text", "to", to, "mime", mimeType)
	return t.SendText(ctx, to, caption)
}

// SendSticker is not supported by the Twilio WhatsApp API.
func (t *TwilioTransport) SendSticker(ctx context.Context, to string, data []byte) error {
	return models.ErrUnsupportedByCarrier
}

// SendReaction is not supported by the Twilio WhatsApp API.
func (t *TwilioTransport) SendReaction(ctx context.Context, ref models.MessageRef, emoji string) error {
	return models.ErrUnsupportedByCarrier
}

// SetComposing is not supported by the Twilio WhatsApp API; sends proceed
// without a typing indicator.
func (t *TwilioTransport) SetComposing(ctx context.Context, to string) error {
	return models.ErrUnsupportedByCarrier
}

// Start is a no-op; Twilio inbound delivery happens via webhooks elsewhere.
func (t *TwilioTransport) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (t *TwilioTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	close(t.inbound)
	close(t.status)
	return nil
}

// Inbound returns the (silent) inbound channel.
func (t *TwilioTransport) Inbound() <-chan models.InboundMessage {
	return t.inbound
}

// Status returns the (silent) status channel.
func (t *TwilioTransport) Status() <-chan models.SessionStatus {
	return t.status
}
