// Package models defines the core data structures for Warmline.
//
// It includes the conversation turn model, campaign configuration, inbound
// transport events, and the warming event notifications shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Direction indicates which side of the conversation produced a turn.
type Direction string

const (
	// DirectionInbound marks a turn received from the contact.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound marks a turn sent by the warmed account.
	DirectionOutbound Direction = "outbound"
)

// TurnKind describes the modality of a recorded turn.
type TurnKind string

const (
	// TurnKindText is a plain text message.
	TurnKindText TurnKind = "text"
	// TurnKindSticker is a sticker send; Text holds a synthetic description.
	TurnKindSticker TurnKind = "sticker"
	// TurnKindMedia is an image/media send; Text holds the caption or description.
	TurnKindMedia TurnKind = "media"
	// TurnKindReaction is an emoji reaction; Text holds the emoji.
	TurnKindReaction TurnKind = "reaction"
	// TurnKindFallback marks a turn whose content was degraded to a placeholder.
	TurnKindFallback TurnKind = "fallback"
)

// Turn is one message-equivalent event in a conversation. Text is literal
// content for text turns and a synthetic description for every other kind, so
// a mixed-kind history can always be rendered as dialogue lines.
type Turn struct {
	Direction Direction `json:"direction"`
	Kind      TurnKind  `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Range is an inclusive [Min, Max] duration interval used for pacing draws.
type Range struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// StickerPolicy controls sticker sends for a campaign.
type StickerPolicy struct {
	Enabled        bool    `json:"enabled"`
	Frequency      float64 `json:"frequency"`
	FallbackToText bool    `json:"fallback_to_text"`
}

// MediaPolicy controls media sends for a campaign.
type MediaPolicy struct {
	Enabled   bool    `json:"enabled"`
	Frequency float64 `json:"frequency"`
}

// DefaultReactionProbability is the chance an inbound message additionally
// receives an emoji reaction, independent of the text reply.
const DefaultReactionProbability = 0.15

// GreetingStagger is the extra delay added per target index when scheduling
// campaign greetings, so N greetings do not fire at the same instant.
const GreetingStagger = 2 * time.Second

// Validation error variables for campaign configuration and start preconditions.
var (
	ErrNoSession            = errors.New("no authenticated messaging session")
	ErrNoTargets            = errors.New("campaign has no target contacts")
	ErrNoPersonality        = errors.New("campaign personality prompt is empty")
	ErrDuplicateTarget      = errors.New("campaign targets contain duplicates")
	ErrInvalidFrequency     = errors.New("policy frequency must be within [0, 1]")
	ErrInvalidRange         = errors.New("range min must not exceed max")
	ErrTypingExceedsDelay   = errors.New("typing duration max must not exceed reply delay min")
	ErrContactNotFound      = errors.New("contact not found")
	ErrUnsupportedByCarrier = errors.New("operation not supported by this transport")
)

// CampaignConfig is the immutable configuration of one warming run.
type CampaignConfig struct {
	PersonalityPrompt   string        `json:"personality_prompt"`
	Targets             []string      `json:"targets"`
	ReplyDelayRange     Range         `json:"reply_delay_range"`
	TypingDurationRange Range         `json:"typing_duration_range"`
	StickerPolicy       StickerPolicy `json:"sticker_policy"`
	MediaPolicy         MediaPolicy   `json:"media_policy"`
	// ReactionProbability is the chance of an additional emoji reaction per
	// inbound message. Zero means "use the default"; set a negative value to
	// disable reactions entirely.
	ReactionProbability float64 `json:"reaction_probability,omitempty"`
}

// Validate checks a campaign configuration for structural problems. Start
// preconditions that depend on live state (session readiness) are checked by
// the orchestrator, not here.
func (c *CampaignConfig) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t] {
			return ErrDuplicateTarget
		}
		seen[t] = true
	}
	if strings.TrimSpace(c.PersonalityPrompt) == "" {
		return ErrNoPersonality
	}
	if c.ReplyDelayRange.Min > c.ReplyDelayRange.Max || c.TypingDurationRange.Min > c.TypingDurationRange.Max {
		return ErrInvalidRange
	}
	if c.ReplyDelayRange.Min < 0 || c.TypingDurationRange.Min < 0 {
		return ErrInvalidRange
	}
	if c.TypingDurationRange.Max > c.ReplyDelayRange.Min {
		return ErrTypingExceedsDelay
	}
	if c.StickerPolicy.Frequency < 0 || c.StickerPolicy.Frequency > 1 {
		return ErrInvalidFrequency
	}
	if c.MediaPolicy.Frequency < 0 || c.MediaPolicy.Frequency > 1 {
		return ErrInvalidFrequency
	}
	if c.ReactionProbability > 1 {
		return ErrInvalidFrequency
	}
	return nil
}

// EffectiveReactionProbability resolves the configured reaction probability
// against the default. Negative values disable reactions.
func (c *CampaignConfig) EffectiveReactionProbability() float64 {
	if c.ReactionProbability < 0 {
		return 0
	}
	if c.ReactionProbability == 0 {
		return DefaultReactionProbability
	}
	return c.ReactionProbability
}

// HasTarget reports whether the given address is one of the campaign targets.
func (c *CampaignConfig) HasTarget(address string) bool {
	for _, t := range c.Targets {
		if t == address {
			return true
		}
	}
	return false
}

// MessageRef identifies a specific transport message for reaction sends.
type MessageRef struct {
	Chat   string `json:"chat"`
	Sender string `json:"sender"`
	ID     string `json:"id"`
	FromMe bool   `json:"from_me"`
}

// InboundMessage is a normalized inbound transport event.
type InboundMessage struct {
	// Source is the counterparty JID/number the event belongs to. For events
	// sent by the own account (FromMe) this is still the counterparty.
	Source    string     `json:"source"`
	To        string     `json:"to"`
	Body      string     `json:"body"`
	Timestamp time.Time  `json:"timestamp"`
	FromMe    bool       `json:"from_me"`
	HasMedia  bool       `json:"has_media"`
	MediaType string     `json:"media_type,omitempty"` // "image", "audio", ...
	MediaMime string     `json:"media_mime,omitempty"`
	MediaData []byte     `json:"-"`
	Ref       MessageRef `json:"ref"`
}

// SessionState describes the connection state of the messaging session.
type SessionState string

const (
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionLoggedOut    SessionState = "logged_out"
)

// SessionStatus is emitted by the transport when the session state changes.
type SessionStatus struct {
	State SessionState `json:"state"`
	Time  time.Time    `json:"time"`
}

// EventKind enumerates warming notifications consumed by UI/stats collaborators.
type EventKind string

const (
	EventGreetingSent   EventKind = "greeting_sent"
	EventReplySent      EventKind = "reply_sent"
	EventReactionSent   EventKind = "reaction_sent"
	EventMediaSent      EventKind = "media_sent"
	EventStickerSent    EventKind = "sticker_sent"
	EventWarmingStopped EventKind = "warming_stopped"
	EventWarmingError   EventKind = "warming_error"
	EventMessageCounted EventKind = "message_count_incremented"
)

// Event is a fire-and-forget warming notification.
type Event struct {
	Kind    EventKind `json:"kind"`
	Address string    `json:"address,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Time    time.Time `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for control-surface responses.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
