package responder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/warmline/warmline/internal/models"
)

type fakeModel struct {
	textReply  string
	textErr    error
	imageReply string
	imageErr   error
	audioReply string
	audioErr   error

	lastSystem string
	lastUser   string
	imageCalls int
	audioCalls int
}

func (f *fakeModel) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.textReply, f.textErr
}

func (f *fakeModel) GenerateTextWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	f.imageCalls++
	return f.imageReply, f.imageErr
}

func (f *fakeModel) GenerateTextWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error) {
	f.audioCalls++
	return f.audioReply, f.audioErr
}

func newTestGenerator(m GenerativeModel) *Generator {
	return NewGenerator(m, rand.New(rand.NewPCG(42, 43)))
}

func someHistory() []models.Turn {
	now := time.Now()
	return []models.Turn{
		{Direction: models.DirectionOutbound, Kind: models.TurnKindText, Text: "Hey!", Timestamp: now},
		{Direction: models.DirectionInbound, Kind: models.TurnKindText, Text: "Hi, how are you?", Timestamp: now},
	}
}

func TestGreetingUsesBackend(t *testing.T) {
	m := &fakeModel{textReply: `"Hello friend!"`}
	g := newTestGenerator(m)

	got := g.Greeting(context.Background(), "be nice")
	if got != "Hello friend!" {
		t.Errorf("Greeting = %q, want quote-stripped backend reply", got)
	}
	if m.lastSystem != "be nice" {
		t.Errorf("personality prompt not passed as system prompt: %q", m.lastSystem)
	}
	if !strings.Contains(m.lastUser, "Variation seed:") {
		t.Errorf("greeting prompt missing variation seed: %q", m.lastUser)
	}
}

func TestGreetingFallbackVariety(t *testing.T) {
	m := &fakeModel{textErr: fmt.Errorf("backend down")}
	g := newTestGenerator(m)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[g.Greeting(context.Background(), "p")] = true
	}
	if len(seen) < 2 {
		t.Errorf("fallback greetings converged to a single string: %v", seen)
	}
	for got := range seen {
		found := false
		for _, fb := range fallbackGreetings {
			if got == fb {
				found = true
			}
		}
		if !found {
			t.Errorf("greeting %q not from the fallback set", got)
		}
	}
}

func TestReplyRendersHistory(t *testing.T) {
	m := &fakeModel{textReply: "Doing great, you?"}
	g := newTestGenerator(m)

	got := g.Reply(context.Background(), "p", someHistory())
	if got != "Doing great, you?" {
		t.Errorf("Reply = %q", got)
	}
	if !strings.Contains(m.lastUser, "You: Hey!") || !strings.Contains(m.lastUser, "Them: Hi, how are you?") {
		t.Errorf("history not rendered with caller perspective:\n%s", m.lastUser)
	}
}

func TestReplyFallback(t *testing.T) {
	m := &fakeModel{textErr: fmt.Errorf("timeout")}
	g := newTestGenerator(m)

	got := g.Reply(context.Background(), "p", someHistory())
	found := false
	for _, fb := range fallbackReplies {
		if got == fb {
			found = true
		}
	}
	if !found {
		t.Errorf("Reply fallback %q not from the fixed set", got)
	}
}

func TestMediaCaptionFallbackIncludesContext(t *testing.T) {
	m := &fakeModel{textErr: fmt.Errorf("down")}
	g := newTestGenerator(m)

	got := g.MediaCaption(context.Background(), "p", nil, "a sunset over the sea")
	if !strings.Contains(got, "a sunset over the sea") {
		t.Errorf("fallback caption must carry the raw context, got %q", got)
	}
}

func TestClassifyEmotion(t *testing.T) {
	cases := []struct {
		reply string
		err   error
		want  string
	}{
		{"funny", nil, "funny"},
		{" Excited. ", nil, "excited"},
		{`"love"`, nil, "love"},
		{"melancholic", nil, DefaultEmotion},
		{"", fmt.Errorf("down"), DefaultEmotion},
	}
	for _, tc := range cases {
		m := &fakeModel{textReply: tc.reply, textErr: tc.err}
		g := newTestGenerator(m)
		if got := g.ClassifyEmotion(context.Background(), someHistory()); got != tc.want {
			t.Errorf("ClassifyEmotion(%q) = %q, want %q", tc.reply, got, tc.want)
		}
	}
}

func TestDescribeImageSizeCeiling(t *testing.T) {
	m := &fakeModel{imageReply: "should not be called"}
	g := newTestGenerator(m)

	big := make([]byte, MaxMediaBytes+1)
	insight := g.DescribeImage(context.Background(), big, "image/jpeg")
	if !insight.Fallback {
		t.Error("oversized image must produce a fallback-marked result")
	}
	if insight.Err == nil {
		t.Error("oversized image must carry a reason")
	}
	if m.imageCalls != 0 {
		t.Error("backend must not be invoked for oversized payloads")
	}
}

func TestDescribeImageSuccess(t *testing.T) {
	m := &fakeModel{imageReply: "a dog wearing sunglasses"}
	g := newTestGenerator(m)

	insight := g.DescribeImage(context.Background(), []byte{1}, "image/png")
	if insight.Fallback {
		t.Fatalf("unexpected fallback: %v", insight.Err)
	}
	if !strings.Contains(insight.Text, "a dog wearing sunglasses") || !strings.HasPrefix(insight.Text, "[Image:") {
		t.Errorf("unexpected description %q", insight.Text)
	}
}

func TestTranscribeAudioFailure(t *testing.T) {
	m := &fakeModel{audioErr: fmt.Errorf("no audio support")}
	g := newTestGenerator(m)

	insight := g.TranscribeAudio(context.Background(), []byte{1}, "audio/ogg")
	if !insight.Fallback || insight.Text != "[Voice message]" {
		t.Errorf("expected generic placeholder, got %+v", insight)
	}
}

func TestRenderHistoryMixedKinds(t *testing.T) {
	now := time.Now()
	history := []models.Turn{
		{Direction: models.DirectionInbound, Kind: models.TurnKindText, Text: "look at this", Timestamp: now},
		{Direction: models.DirectionInbound, Kind: models.TurnKindMedia, Text: `[Image: "a cat"]`, Timestamp: now},
		{Direction: models.DirectionOutbound, Kind: models.TurnKindSticker, Text: "funny", Timestamp: now},
		{Direction: models.DirectionOutbound, Kind: models.TurnKindReaction, Text: "😂", Timestamp: now},
	}
	out := RenderHistory(history, 10)
	for _, want := range []string{
		"Them: look at this",
		`Them: [Image: "a cat"]`,
		"You: [Sticker: funny]",
		"You: [Reacted with 😂]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered history missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistoryWindow(t *testing.T) {
	var history []models.Turn
	for i := 0; i < 20; i++ {
		history = append(history, models.Turn{
			Direction: models.DirectionInbound,
			Kind:      models.TurnKindText,
			Text:      fmt.Sprintf("msg-%d", i),
		})
	}
	out := RenderHistory(history, 5)
	if strings.Contains(out, "msg-14") {
		t.Error("window must drop turns beyond the limit")
	}
	if !strings.Contains(out, "msg-19") {
		t.Error("window must keep the newest turns")
	}
}

func TestStripQuotes(t *testing.T) {
	cases := map[string]string{
		`"hello"`:         "hello",
		`'hi there'`:      "hi there",
		"\u201chey\u201d": "hey",
		`plain`:           "plain",
		`"`:               `"`,
	}
	for in, want := range cases {
		if got := stripQuotes(in); got != want {
			t.Errorf("stripQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}
