package genai

import (
	"context"
	"fmt"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeChat struct {
	lastParams openai.ChatCompletionNewParams
	reply      string
	err        error
}

func (f *fakeChat) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func TestGenerateText(t *testing.T) {
	fake := &fakeChat{reply: "hello there"}
	c := &Client{chat: fake, model: DefaultModel, audioModel: DefaultAudioModel}

	got, err := c.GenerateText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "hello there" {
		t.Errorf("GenerateText = %q", got)
	}
	if len(fake.lastParams.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(fake.lastParams.Messages))
	}
	if fake.lastParams.Model != DefaultModel {
		t.Errorf("unexpected model %q", fake.lastParams.Model)
	}
}

func TestGenerateTextError(t *testing.T) {
	fake := &fakeChat{err: fmt.Errorf("quota exceeded")}
	c := &Client{chat: fake, model: DefaultModel, audioModel: DefaultAudioModel}

	if _, err := c.GenerateText(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestFirstChoiceRejectsEmptyResponse(t *testing.T) {
	if _, err := firstChoice(&openai.ChatCompletion{}); err == nil {
		t.Error("firstChoice must reject an empty choice list")
	}
	if _, err := firstChoice(nil); err == nil {
		t.Error("firstChoice must reject a nil response")
	}
}

func TestGenerateTextWithAudioUsesAudioModel(t *testing.T) {
	fake := &fakeChat{reply: "transcribed"}
	c := &Client{chat: fake, model: DefaultModel, audioModel: DefaultAudioModel}

	got, err := c.GenerateTextWithAudio(context.Background(), "transcribe this", []byte{1, 2, 3}, "audio/ogg")
	if err != nil {
		t.Fatalf("GenerateTextWithAudio: %v", err)
	}
	if got != "transcribed" {
		t.Errorf("GenerateTextWithAudio = %q", got)
	}
	if fake.lastParams.Model != DefaultAudioModel {
		t.Errorf("expected audio model, got %q", fake.lastParams.Model)
	}
}

func TestAudioFormat(t *testing.T) {
	if audioFormat("audio/wav") != "wav" {
		t.Error("wav mime must map to wav")
	}
	if audioFormat("audio/ogg; codecs=opus") != "mp3" {
		t.Error("unknown mime must fall back to mp3")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Fatalf("unexpected error with explicit key: %v", err)
	}
}
