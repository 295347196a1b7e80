package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mindviza/mindviza/internal/llm"
)

// fakeClient returns a canned completion, or an error.
type fakeClient struct {
	content string
	err     error
	prompts []string
}

func (f *fakeClient) Complete(_ context.Context, _ string, msgs []llm.Message) (*llm.Completion, error) {
	if len(msgs) > 0 {
		f.prompts = append(f.prompts, msgs[len(msgs)-1].Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.content}, nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

// recordingPutter captures Put calls without a database.
type recordingPutter struct {
	puts []json.RawMessage
	err  error
}

func (p *recordingPutter) Put(_, _, _ string, value json.RawMessage) (*Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.puts = append(p.puts, value)
	return &Record{Value: value}, nil
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRaw string
		wantOK  bool
	}{
		{
			name:    "bare object",
			input:   `{"Preference": "tea"}`,
			wantRaw: `{"Preference": "tea"}`,
			wantOK:  true,
		},
		{
			name:    "object wrapped in chatter",
			input:   `Sure! {"Preference": "tea"} enjoy!`,
			wantRaw: `{"Preference": "tea"}`,
			wantOK:  true,
		},
		{
			name:    "empty object",
			input:   `{}`,
			wantRaw: `{}`,
			wantOK:  true,
		},
		{
			name:    "nested object spans full brace range",
			input:   `{"A": {"B": "c"}}`,
			wantRaw: `{"A": {"B": "c"}}`,
			wantOK:  true,
		},
		{name: "no braces", input: "nothing to save here", wantOK: false},
		{name: "reversed braces", input: "} oops {", wantOK: false},
		{name: "invalid json between braces", input: "{not json}", wantOK: false},
		{name: "empty string", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _, ok := ExtractObject(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && string(raw) != tt.wantRaw {
				t.Errorf("raw = %s, want %s", raw, tt.wantRaw)
			}
		})
	}
}

func TestCurateStoresExtractedObject(t *testing.T) {
	client := &fakeClient{content: `Sure! {"Preference": "tea"} enjoy!`}
	putter := &recordingPutter{}
	c := NewCurator(putter, client, nil)

	rec := c.Curate(context.Background(), "user-1", "thread-a", []TurnMessage{
		{Role: "user", Content: "I prefer tea over coffee"},
		{Role: "assistant", Content: "Noted, tea it is."},
	})

	if rec == nil {
		t.Fatal("Curate returned nil, want stored record")
	}
	if len(putter.puts) != 1 {
		t.Fatalf("got %d writes, want 1", len(putter.puts))
	}
	if string(putter.puts[0]) != `{"Preference": "tea"}` {
		t.Errorf("stored value = %s, want the brace-delimited object only", putter.puts[0])
	}
}

func TestCurateSkipsWithoutWriting(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"empty object", &fakeClient{content: `{}`}},
		{"blank response", &fakeClient{content: "   "}},
		{"unparseable response", &fakeClient{content: "I could not find anything"}},
		{"completion error", &fakeClient{err: errors.New("backend down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			putter := &recordingPutter{}
			c := NewCurator(putter, tt.client, nil)

			rec := c.Curate(context.Background(), "user-1", "thread-a", []TurnMessage{
				{Role: "user", Content: "hi"},
			})

			if rec != nil {
				t.Error("Curate returned a record, want nil")
			}
			if len(putter.puts) != 0 {
				t.Errorf("got %d writes, want 0", len(putter.puts))
			}
		})
	}
}

func TestCurateSwallowsStoreError(t *testing.T) {
	client := &fakeClient{content: `{"Mood": "stressed"}`}
	putter := &recordingPutter{err: errors.New("disk full")}
	c := NewCurator(putter, client, nil)

	rec := c.Curate(context.Background(), "user-1", "thread-a", []TurnMessage{
		{Role: "user", Content: "work is stressful"},
	})
	if rec != nil {
		t.Error("Curate returned a record despite store failure")
	}
}

func TestCurateSerializesConversationForPrompt(t *testing.T) {
	client := &fakeClient{content: `{}`}
	c := NewCurator(&recordingPutter{}, client, nil)

	c.Curate(context.Background(), "user-1", "thread-a", []TurnMessage{
		{Role: "user", Content: "I got a new job"},
		{Role: "assistant", Content: "Congratulations!"},
		{Role: "system", Content: "internal note"},
	})

	if len(client.prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(client.prompts))
	}
	prompt := client.prompts[0]
	if !strings.Contains(prompt, `{"User":"I got a new job"}`) {
		t.Errorf("prompt missing user entry: %s", prompt)
	}
	if !strings.Contains(prompt, `{"Chatbot":"Congratulations!"}`) {
		t.Errorf("prompt missing chatbot entry: %s", prompt)
	}
	if strings.Contains(prompt, "internal note") {
		t.Errorf("system message leaked into extraction prompt")
	}
}
