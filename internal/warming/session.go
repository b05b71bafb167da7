// Package warming implements the conversation orchestration engine: the state
// machine that runs a warming campaign against a set of target contacts.
//
// A Session owns all campaign state. It schedules greetings when a campaign
// starts, reacts to inbound transport events, picks a content channel for each
// outbound turn, paces sends through an injected timer so they look human, and
// discards the effects of any continuation that completes after the session
// stopped.
package warming

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/warmline/warmline/internal/media"
	"github.com/warmline/warmline/internal/messaging"
	"github.com/warmline/warmline/internal/models"
	"github.com/warmline/warmline/internal/policy"
	"github.com/warmline/warmline/internal/responder"
	"github.com/warmline/warmline/internal/scheduler"
	"github.com/warmline/warmline/internal/store"
	"github.com/warmline/warmline/internal/util"
)

// eventBufferSize bounds the notification channel; events beyond it are
// dropped rather than blocking a send path.
const eventBufferSize = 100

// ResponseGenerator produces outbound content. Every method returns a usable
// value under all failure modes.
type ResponseGenerator interface {
	Greeting(ctx context.Context, personalityPrompt string) string
	Reply(ctx context.Context, personalityPrompt string, history []models.Turn) string
	MediaCaption(ctx context.Context, personalityPrompt string, history []models.Turn, mediaContext string) string
	ClassifyEmotion(ctx context.Context, history []models.Turn) string
	DescribeImage(ctx context.Context, image []byte, mimeType string) responder.MediaInsight
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) responder.MediaInsight
}

// MediaSelector picks stickers and media items from the catalogue.
type MediaSelector interface {
	RandomSticker(category string, r *rand.Rand) string
	RandomMedia(r *rand.Rand) *media.Item
}

// emotionEmojis maps classifier labels to reaction emojis.
var emotionEmojis = map[string]string{
	"funny":     "😂",
	"love":      "❤️",
	"sad":       "😢",
	"excited":   "🎉",
	"thumbs_up": "👍",
	"thinking":  "🤔",
	"wow":       "😮",
	"casual":    "🙂",
}

// Session is the warming orchestrator. All exported methods are safe for
// concurrent use; timer continuations re-verify liveness after every
// suspension point so a stop in between turns them into no-ops.
type Session struct {
	transport messaging.Transport
	generator ResponseGenerator
	selector  MediaSelector
	timer     scheduler.Timer
	convs     *store.ConversationStore
	dedup     *store.DedupLedger
	stats     store.StatsRepo
	events    chan models.Event

	mu       sync.Mutex
	active   bool
	campaign models.CampaignConfig
	rng      *rand.Rand
}

// NewSession wires a warming session from its collaborators. A nil rng gets a
// randomly seeded source; tests pass a seeded one.
func NewSession(transport messaging.Transport, generator ResponseGenerator, selector MediaSelector, timer scheduler.Timer, convs *store.ConversationStore, dedup *store.DedupLedger, stats store.StatsRepo, rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Session{
		transport: transport,
		generator: generator,
		selector:  selector,
		timer:     timer,
		convs:     convs,
		dedup:     dedup,
		stats:     stats,
		events:    make(chan models.Event, eventBufferSize),
		rng:       rng,
	}
}

// Events returns the notification channel consumed by UI/stats collaborators.
func (s *Session) Events() <-chan models.Event {
	return s.events
}

// IsActive reports whether a campaign is running.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveConversations returns the addresses with live conversation state.
func (s *Session) ActiveConversations() []string {
	return s.convs.ActiveAddresses()
}

// History returns a copy of the conversation history for an address.
func (s *Session) History(address string) []models.Turn {
	return s.convs.History(address)
}

// Start begins a warming campaign. Preconditions are checked in order and the
// first failure wins: ready session, non-empty targets, non-empty personality
// prompt. Starting an already active session is a logged no-op.
func (s *Session) Start(campaign models.CampaignConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		slog.Info("warming already active, ignoring start")
		return nil
	}
	if !s.transport.IsReady() {
		return models.ErrNoSession
	}
	if len(campaign.Targets) == 0 {
		return models.ErrNoTargets
	}
	if err := campaign.Validate(); err != nil {
		return err
	}

	s.active = true
	s.campaign = campaign

	for i, target := range campaign.Targets {
		s.convs.Init(target)
		delay := util.DurationBetween(s.rng, campaign.ReplyDelayRange.Min, campaign.ReplyDelayRange.Max)
		delay += time.Duration(i) * models.GreetingStagger
		addr := target
		if _, err := s.timer.After(delay, func() { s.sendGreeting(addr) }); err != nil {
			slog.Error("failed to schedule greeting", "address", addr, "error", err)
		}
	}

	slog.Info("warming started", "targets", len(campaign.Targets))
	return nil
}

// Stop ends the campaign: outstanding scheduled sends are cancelled
// best-effort and all conversation state is cleared. Idempotent.
func (s *Session) Stop() {
	s.stop("requested")
}

func (s *Session) stop(reason string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.timer.StopAll()
	s.convs.Clear()
	s.emit(models.Event{Kind: models.EventWarmingStopped, Detail: reason, Time: time.Now()})
	slog.Info("warming stopped", "reason", reason)
}

// Run consumes transport events until the context is cancelled. A session
// status reporting loss of connection force-stops the campaign; this is the
// one case where an external event unilaterally terminates it.
func (s *Session) Run(ctx context.Context) {
	inbound := s.transport.Inbound()
	status := s.transport.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.HandleInbound(ctx, msg)
		case st, ok := <-status:
			if !ok {
				return
			}
			if st.State != models.SessionConnected && s.IsActive() {
				s.stop("disconnected")
			}
		}
	}
}

// HandleInbound is the core reactive path for one inbound transport event.
func (s *Session) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	fp := store.Fingerprint(msg.Source, msg.Timestamp, msg.Body)
	if s.dedup.Seen(fp) {
		slog.Debug("duplicate inbound suppressed", "address", msg.Source)
		return
	}

	turn := s.buildInboundTurn(ctx, msg)
	s.convs.AppendTurn(msg.Source, turn)
	if !msg.FromMe {
		if err := s.stats.IncrementReceived(msg.Source); err != nil {
			slog.Warn("failed to record received message", "address", msg.Source, "error", err)
		}
	}

	s.mu.Lock()
	active := s.active
	campaign := s.campaign
	s.mu.Unlock()

	// Own messages and non-target senders are logged for history only.
	if !active || msg.FromMe || !campaign.HasTarget(msg.Source) {
		return
	}

	if s.convs.IsDisabled(msg.Source) {
		s.convs.SetPending(msg.Source, msg.Body)
		slog.Debug("contact disabled, inbound queued", "address", msg.Source)
		return
	}

	if s.drawBool(campaign.EffectiveReactionProbability()) {
		ref := msg.Ref
		addr := msg.Source
		if _, err := s.timer.After(0, func() { s.sendReaction(ctx, addr, ref) }); err != nil {
			slog.Error("failed to schedule reaction", "address", addr, "error", err)
		}
	}

	delay := s.drawDuration(campaign.ReplyDelayRange)
	addr := msg.Source
	if _, err := s.timer.After(delay, func() { s.beginReply(ctx, addr) }); err != nil {
		slog.Error("failed to schedule reply", "address", addr, "error", err)
	}
}

// buildInboundTurn converts an event into a Turn, routing media through the
// understanding path. Failures degrade to a generic placeholder.
func (s *Session) buildInboundTurn(ctx context.Context, msg models.InboundMessage) models.Turn {
	direction := models.DirectionInbound
	if msg.FromMe {
		direction = models.DirectionOutbound
	}
	turn := models.Turn{Direction: direction, Kind: models.TurnKindText, Text: msg.Body, Timestamp: msg.Timestamp}

	if !msg.HasMedia {
		return turn
	}

	var insight responder.MediaInsight
	switch msg.MediaType {
	case "audio":
		insight = s.generator.TranscribeAudio(ctx, msg.MediaData, msg.MediaMime)
	default:
		insight = s.generator.DescribeImage(ctx, msg.MediaData, msg.MediaMime)
	}

	turn.Kind = models.TurnKindMedia
	turn.Text = insight.Text
	if msg.Body != "" {
		turn.Text = insight.Text + " " + msg.Body
	}
	if insight.Fallback {
		turn.Kind = models.TurnKindFallback
		if insight.Err != nil {
			slog.Warn("media understanding degraded", "address", msg.Source, "error", insight.Err)
		}
	}
	return turn
}

// EnableContact re-enables a contact and drains its pending-reply queue.
func (s *Session) EnableContact(address string) {
	s.convs.Enable(address)
	slog.Debug("contact enabled", "address", address)

	s.mu.Lock()
	active := s.active
	campaign := s.campaign
	s.mu.Unlock()
	if !active {
		return
	}

	text, ok := s.convs.TakePending(address)
	if !ok {
		return
	}
	// Skip recording if the identical inbound turn already arrived through
	// the normal path while the contact was disabled.
	if !s.convs.HasTurn(address, text, models.DirectionInbound) {
		s.convs.AppendTurn(address, models.Turn{
			Direction: models.DirectionInbound,
			Kind:      models.TurnKindText,
			Text:      text,
			Timestamp: time.Now(),
		})
	}

	delay := s.drawDuration(campaign.ReplyDelayRange)
	if _, err := s.timer.After(delay, func() { s.beginReply(context.Background(), address) }); err != nil {
		slog.Error("failed to schedule drained reply", "address", address, "error", err)
	}
}

// DisableContact marks a contact as disabled; its inbound messages will be
// queued instead of replied to.
func (s *Session) DisableContact(address string) {
	s.convs.Disable(address)
	slog.Debug("contact disabled", "address", address)
}

// sendGreeting runs the paced greeting pipeline for one target. Failure of
// one greeting never affects the others.
func (s *Session) sendGreeting(address string) {
	if !s.sendable(address) {
		return
	}
	s.composeThen(address, func() { s.deliverGreeting(address) })
}

func (s *Session) deliverGreeting(address string) {
	if !s.sendable(address) {
		return
	}
	s.mu.Lock()
	personality := s.campaign.PersonalityPrompt
	s.mu.Unlock()

	ctx := context.Background()
	text := s.generator.Greeting(ctx, personality)
	if err := s.transport.SendText(ctx, address, text); err != nil {
		s.reportError(address, fmt.Errorf("greeting send failed: %w", err))
		return
	}
	s.recordOutbound(address, models.Turn{
		Direction: models.DirectionOutbound,
		Kind:      models.TurnKindText,
		Text:      text,
		Timestamp: time.Now(),
	}, models.EventGreetingSent)
}

// beginReply is the first phase of a scheduled reply: it re-verifies
// liveness, shows the typing indicator, and schedules delivery after the
// typing wait.
func (s *Session) beginReply(ctx context.Context, address string) {
	if !s.sendable(address) {
		return
	}
	s.composeThen(address, func() { s.deliverReply(ctx, address) })
}

// composeThen emits the composing signal and schedules fn after a typing
// duration drawn from the campaign range. The signal and the wait are
// sequential; generation happens after the wait.
func (s *Session) composeThen(address string, fn func()) {
	if err := s.transport.SetComposing(context.Background(), address); err != nil {
		slog.Debug("composing signal unavailable", "address", address, "error", err)
	}
	s.mu.Lock()
	typingRange := s.campaign.TypingDurationRange
	s.mu.Unlock()
	typing := s.drawDuration(typingRange)
	if _, err := s.timer.After(typing, fn); err != nil {
		slog.Error("failed to schedule delivery", "address", address, "error", err)
	}
}

// deliverReply evaluates the content policy and performs the send. Only one
// channel is sent per invocation; an attempted-but-unavailable earlier option
// aborts the turn except for the sticker-to-text fallback.
func (s *Session) deliverReply(ctx context.Context, address string) {
	if !s.sendable(address) {
		return
	}

	s.mu.Lock()
	campaign := s.campaign
	s.mu.Unlock()

	history := s.convs.History(address)
	channel := s.drawChannel(campaign.MediaPolicy, campaign.StickerPolicy)

	switch channel {
	case policy.ChannelMedia:
		s.deliverMedia(ctx, address, campaign, history)
	case policy.ChannelSticker:
		s.deliverSticker(ctx, address, campaign, history)
	default:
		s.deliverText(ctx, address, campaign, history)
	}
}

func (s *Session) deliverMedia(ctx context.Context, address string, campaign models.CampaignConfig, history []models.Turn) {
	item := s.drawMedia()
	if item == nil {
		slog.Debug("media channel chosen but catalogue empty", "address", address)
		return
	}
	data, err := os.ReadFile(item.Path)
	if err != nil {
		s.reportError(address, fmt.Errorf("media read failed: %w", err))
		return
	}
	caption := s.generator.MediaCaption(ctx, campaign.PersonalityPrompt, history, item.Description)
	if err := s.transport.SendMedia(ctx, address, data, item.Mime, caption); err != nil {
		s.reportError(address, fmt.Errorf("media send failed: %w", err))
		return
	}
	s.recordOutbound(address, models.Turn{
		Direction: models.DirectionOutbound,
		Kind:      models.TurnKindMedia,
		Text:      fmt.Sprintf("[Image: %s] %s", item.Description, caption),
		Timestamp: time.Now(),
	}, models.EventMediaSent)
}

func (s *Session) deliverSticker(ctx context.Context, address string, campaign models.CampaignConfig, history []models.Turn) {
	emotion := s.generator.ClassifyEmotion(ctx, history)
	path := s.drawSticker(emotion)
	if path == "" {
		slog.Debug("sticker channel chosen but no sticker available", "address", address, "emotion", emotion)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.reportError(address, fmt.Errorf("sticker read failed: %w", err))
		return
	}
	if err := s.transport.SendSticker(ctx, address, data); err != nil {
		s.reportError(address, fmt.Errorf("sticker send failed: %w", err))
		if campaign.StickerPolicy.FallbackToText {
			s.deliverText(ctx, address, campaign, history)
		}
		return
	}
	s.recordOutbound(address, models.Turn{
		Direction: models.DirectionOutbound,
		Kind:      models.TurnKindSticker,
		Text:      emotion,
		Timestamp: time.Now(),
	}, models.EventStickerSent)
}

func (s *Session) deliverText(ctx context.Context, address string, campaign models.CampaignConfig, history []models.Turn) {
	text := s.generator.Reply(ctx, campaign.PersonalityPrompt, history)
	if err := s.transport.SendText(ctx, address, text); err != nil {
		s.reportError(address, fmt.Errorf("text send failed: %w", err))
		return
	}
	s.recordOutbound(address, models.Turn{
		Direction: models.DirectionOutbound,
		Kind:      models.TurnKindText,
		Text:      text,
		Timestamp: time.Now(),
	}, models.EventReplySent)
}

// sendReaction delivers an emoji reaction matched to the conversation mood.
// It never consumes the text-reply slot.
func (s *Session) sendReaction(ctx context.Context, address string, ref models.MessageRef) {
	if !s.sendable(address) {
		return
	}
	emotion := s.generator.ClassifyEmotion(ctx, s.convs.History(address))
	emoji, ok := emotionEmojis[emotion]
	if !ok {
		emoji = emotionEmojis[responder.DefaultEmotion]
	}
	if err := s.transport.SendReaction(ctx, ref, emoji); err != nil {
		s.reportError(address, fmt.Errorf("reaction send failed: %w", err))
		return
	}
	if s.IsActive() && s.convs.AppendTurnIfExists(address, models.Turn{
		Direction: models.DirectionOutbound,
		Kind:      models.TurnKindReaction,
		Text:      emoji,
		Timestamp: time.Now(),
	}) {
		s.emit(models.Event{Kind: models.EventReactionSent, Address: address, Detail: emoji, Time: time.Now()})
	}
}

// recordOutbound appends the turn, bumps stats, and notifies exactly once per
// completed send. A send completing after stop is discarded.
func (s *Session) recordOutbound(address string, turn models.Turn, kind models.EventKind) {
	if !s.IsActive() {
		slog.Debug("send completed after stop, discarding", "address", address)
		return
	}
	if !s.convs.AppendTurnIfExists(address, turn) {
		slog.Debug("conversation gone, discarding completed send", "address", address)
		return
	}
	if err := s.stats.IncrementSent(address); err != nil {
		slog.Warn("failed to record sent message", "address", address, "error", err)
	}
	s.emit(models.Event{Kind: kind, Address: address, Detail: turn.Text, Time: turn.Timestamp})
	s.emit(models.Event{Kind: models.EventMessageCounted, Address: address, Time: turn.Timestamp})
}

// sendable re-verifies the liveness preconditions shared by every scheduled
// continuation: session still active, transport still ready, conversation
// still present. Any failure aborts silently; a later inbound event or an
// explicit queue drain re-triggers the send.
func (s *Session) sendable(address string) bool {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return false
	}
	if !s.transport.IsReady() {
		return false
	}
	return s.convs.Exists(address)
}

func (s *Session) reportError(address string, err error) {
	slog.Error("warming send failed", "address", address, "error", err)
	s.emit(models.Event{Kind: models.EventWarmingError, Address: address, Detail: err.Error(), Time: time.Now()})
}

// emit delivers an event without ever blocking a send path.
func (s *Session) emit(evt models.Event) {
	select {
	case s.events <- evt:
	default:
		slog.Warn("event channel full, dropping notification", "kind", evt.Kind)
	}
}

func (s *Session) drawDuration(r models.Range) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.DurationBetween(s.rng, r.Min, r.Max)
}

func (s *Session) drawBool(probability float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return policy.ShouldReact(probability, s.rng)
}

func (s *Session) drawChannel(media models.MediaPolicy, sticker models.StickerPolicy) policy.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return policy.ChooseChannel(media, sticker, s.rng)
}

func (s *Session) drawMedia() *media.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.RandomMedia(s.rng)
}

func (s *Session) drawSticker(category string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.RandomSticker(category, s.rng)
}
