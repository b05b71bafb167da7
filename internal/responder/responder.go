// Package responder turns conversation state into human-plausible outbound
// content: greetings, contextual replies, media captions, emotion labels, and
// synthetic descriptions of inbound media.
//
// Every public operation returns a usable value under all failure modes. The
// orchestrator has no synchronous retry path during a live send, so a
// generation failure degrades to a curated fallback instead of an error.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/warmline/warmline/internal/models"
	"github.com/warmline/warmline/internal/util"
)

// MaxMediaBytes is the upstream size ceiling for media-understanding calls.
const MaxMediaBytes = 10 << 20

// historyWindow caps how many turns are rendered into a reply prompt.
const historyWindow = 10

// emotionWindow caps how many turns feed the emotion classifier.
const emotionWindow = 5

// GenerativeModel is the backend capability the responder consumes.
type GenerativeModel interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateTextWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	GenerateTextWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error)
}

// EmotionLabels is the closed set of labels the classifier may emit. Anything
// outside the set maps to "casual".
var EmotionLabels = []string{"funny", "love", "sad", "excited", "thumbs_up", "thinking", "wow", "casual"}

// DefaultEmotion is the safe classification fallback.
const DefaultEmotion = "casual"

// greetingStyles bias the backend away from producing the same opener every
// time; one is chosen at random per greeting.
var greetingStyles = []string{
	"playful and teasing",
	"curious, asking about their day",
	"warm and familiar",
	"short and casual",
	"upbeat with a light joke",
	"relaxed, like picking up an old thread",
}

// fallbackGreetings is used when the backend call fails. Kept deliberately
// varied so repeated failures never converge on a single opener.
var fallbackGreetings = []string{
	"Hey! How's your day going?",
	"Hi there, long time no talk!",
	"Hello! What have you been up to?",
	"Hey, how are things on your end?",
	"Hi! Anything fun happening today?",
	"Good to see you pop up, how've you been?",
	"Hey hey! What's new with you?",
	"Hi, hope your week is treating you well!",
	"Heya! Got anything exciting going on?",
	"Hey! Was just thinking about you, how's everything?",
}

// fallbackReplies is used when reply generation fails mid-conversation.
var fallbackReplies = []string{
	"That's interesting!",
	"Ha, I know what you mean.",
	"Totally get that.",
	"Nice, tell me more!",
	"Sounds good to me.",
}

// MediaInsight is the result of a media-understanding call. Fallback marks a
// degraded result; Err then says why (size decline vs backend error), but
// callers treat both identically.
type MediaInsight struct {
	Text     string
	Fallback bool
	Err      error
}

// Generator produces outbound content for the warming orchestrator.
type Generator struct {
	model GenerativeModel

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a responder backed by the given model and random
// source. The random source is serialized internally, so the generator is safe
// for concurrent use from timer continuations.
func NewGenerator(model GenerativeModel, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{model: model, rng: rng}
}

func (g *Generator) draw(f func(r *rand.Rand) string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return f(g.rng)
}

func (g *Generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Greeting produces a varied conversation opener. A style descriptor and a
// numeric variation seed are injected into the prompt so the backend does not
// converge on one template; on failure a random curated greeting is returned.
func (g *Generator) Greeting(ctx context.Context, personalityPrompt string) string {
	style := g.draw(func(r *rand.Rand) string { return util.PickString(r, greetingStyles) })
	seed := g.intN(10000)

	user := fmt.Sprintf(
		"Write a short, natural greeting message to a friend to start a conversation. "+
			"Tone: %s. Variation seed: %d. One sentence, no quotation marks, no emojis unless it fits.",
		style, seed,
	)
	text, err := g.model.GenerateText(ctx, personalityPrompt, user)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("greeting generation failed, using fallback", "error", err)
		return g.draw(func(r *rand.Rand) string { return util.PickString(r, fallbackGreetings) })
	}
	return stripQuotes(text)
}

// Reply produces a short contextual reply to the rendered history. On failure
// it returns one of a small fixed fallback set.
func (g *Generator) Reply(ctx context.Context, personalityPrompt string, history []models.Turn) string {
	user := fmt.Sprintf(
		"This is the conversation so far:\n%s\nWrite the next message from You. "+
			"Keep it natural and short, 1-2 sentences. Do not wrap it in quotes.",
		RenderHistory(history, historyWindow),
	)
	text, err := g.model.GenerateText(ctx, personalityPrompt, user)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("reply generation failed, using fallback", "error", err)
		return g.draw(func(r *rand.Rand) string { return util.PickString(r, fallbackReplies) })
	}
	return stripQuotes(text)
}

// MediaCaption produces a caption for an outbound media item, grounded in the
// supplied context description. Fallback concatenates a generic opener with
// the raw context.
func (g *Generator) MediaCaption(ctx context.Context, personalityPrompt string, history []models.Turn, mediaContext string) string {
	user := fmt.Sprintf(
		"This is the conversation so far:\n%s\nYou are about to send an image described as: %s\n"+
			"Write a short caption for it, 1 sentence, matching the conversation. No quotes.",
		RenderHistory(history, historyWindow), mediaContext,
	)
	text, err := g.model.GenerateText(ctx, personalityPrompt, user)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("caption generation failed, using fallback", "error", err)
		return "Check this out! " + mediaContext
	}
	return stripQuotes(text)
}

// ClassifyEmotion labels the recent mood of the conversation with one of
// EmotionLabels. Any response outside the set, or any call failure, maps to
// the casual default; classification never blocks a send.
func (g *Generator) ClassifyEmotion(ctx context.Context, history []models.Turn) string {
	system := "You classify the emotional tone of chat conversations. " +
		"Answer with exactly one word from this list: " + strings.Join(EmotionLabels, ", ") + "."
	user := "Conversation:\n" + RenderHistory(history, emotionWindow) + "\nLabel:"

	text, err := g.model.GenerateText(ctx, system, user)
	if err != nil {
		slog.Debug("emotion classification failed, defaulting", "error", err)
		return DefaultEmotion
	}
	label := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".\"'"))
	for _, known := range EmotionLabels {
		if label == known {
			return label
		}
	}
	return DefaultEmotion
}

// DescribeImage produces a synthetic text description of an inbound image.
// Oversized payloads are declined before reaching the backend.
func (g *Generator) DescribeImage(ctx context.Context, image []byte, mimeType string) MediaInsight {
	if len(image) > MaxMediaBytes {
		return MediaInsight{
			Text:     "[Image]",
			Fallback: true,
			Err:      fmt.Errorf("image of %d bytes exceeds %d byte limit", len(image), MaxMediaBytes),
		}
	}
	text, err := g.model.GenerateTextWithImage(ctx,
		"Describe this image in one short sentence, as if summarizing it for a chat log.", image, mimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		return MediaInsight{Text: "[Image]", Fallback: true, Err: err}
	}
	return MediaInsight{Text: fmt.Sprintf("[Image: %q]", stripQuotes(text))}
}

// TranscribeAudio produces a synthetic text rendering of an inbound voice
// message. Oversized payloads are declined before reaching the backend.
func (g *Generator) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) MediaInsight {
	if len(audio) > MaxMediaBytes {
		return MediaInsight{
			Text:     "[Voice message]",
			Fallback: true,
			Err:      fmt.Errorf("audio of %d bytes exceeds %d byte limit", len(audio), MaxMediaBytes),
		}
	}
	text, err := g.model.GenerateTextWithAudio(ctx,
		"Transcribe this voice message. Reply with only the transcription.", audio, mimeType)
	if err != nil || strings.TrimSpace(text) == "" {
		return MediaInsight{Text: "[Voice message]", Fallback: true, Err: err}
	}
	return MediaInsight{Text: fmt.Sprintf("[Voice message: %q]", stripQuotes(text))}
}

// RenderHistory formats the last `limit` turns as alternating "Them:"/"You:"
// dialogue lines. Every turn renders as a text line regardless of kind, so the
// backend always gets linguistic context for stickers, media, and reactions.
func RenderHistory(history []models.Turn, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, turn := range history {
		speaker := "Them"
		if turn.Direction == models.DirectionOutbound {
			speaker = "You"
		}
		line := turn.Text
		switch turn.Kind {
		case models.TurnKindSticker:
			if !strings.HasPrefix(line, "[") {
				line = "[Sticker: " + line + "]"
			}
		case models.TurnKindReaction:
			line = "[Reacted with " + line + "]"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, line)
	}
	return b.String()
}

// stripQuotes removes a single layer of wrapping quote characters that chat
// models like to add around generated messages.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, pair := range [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}} {
		if strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) && len(s) > len(pair[0])+len(pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}
