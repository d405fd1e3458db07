package filter

import (
	"reflect"
	"testing"
)

func TestExtractText(t *testing.T) {
	testCases := []struct {
		name    string
		payload any
		want    string
		wantOK  bool
	}{
		{
			name:    "plain string",
			payload: "hello world",
			want:    "hello world",
			wantOK:  true,
		},
		{
			name:    "content key",
			payload: map[string]any{"content": "the text", "id": "x"},
			want:    "the text",
			wantOK:  true,
		},
		{
			name:    "completion key",
			payload: map[string]any{"completion": "finished text"},
			want:    "finished text",
			wantOK:  true,
		},
		{
			name: "key priority prefers content",
			payload: map[string]any{
				"text":    "lower priority",
				"content": "higher priority",
			},
			want:   "higher priority",
			wantOK: true,
		},
		{
			name: "chat choices shape",
			payload: map[string]any{
				"choices": []any{
					map[string]any{"message": map[string]any{"content": "from choices"}},
				},
			},
			want:   "from choices",
			wantOK: true,
		},
		{
			name:    "list of parts",
			payload: []any{"part one", "part two"},
			want:    "part one part two",
			wantOK:  true,
		},
		{
			name:    "nested list and map",
			payload: []any{map[string]any{"content": "a"}, "b"},
			want:    "a b",
			wantOK:  true,
		},
		{
			name:    "non-string content value",
			payload: map[string]any{"content": 42},
			wantOK:  false,
		},
		{
			name:    "no recognized key",
			payload: map[string]any{"tool_call": "lookup"},
			wantOK:  false,
		},
		{
			name:    "empty choices",
			payload: map[string]any{"choices": []any{}},
			wantOK:  false,
		},
		{
			name:    "number payload",
			payload: 7,
			wantOK:  false,
		},
		{
			name:    "empty string is still text",
			payload: "",
			want:    "",
			wantOK:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractText(tc.payload)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("text = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestInjectText(t *testing.T) {
	t.Run("string payload", func(t *testing.T) {
		if got := InjectText("old", "new"); got != "new" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("map payload keeps other fields", func(t *testing.T) {
		in := map[string]any{"content": "old", "id": "x"}
		out := InjectText(in, "new").(map[string]any)
		if out["content"] != "new" || out["id"] != "x" {
			t.Errorf("got %v", out)
		}
		if in["content"] != "old" {
			t.Error("input map was mutated")
		}
	})

	t.Run("chat choices payload", func(t *testing.T) {
		in := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "old", "role": "assistant"}},
			},
		}
		out := InjectText(in, "new").(map[string]any)
		msg := out["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)
		if msg["content"] != "new" {
			t.Errorf("content = %v", msg["content"])
		}
		if msg["role"] != "assistant" {
			t.Error("sibling message fields lost")
		}
	})

	t.Run("list payload collapses", func(t *testing.T) {
		out := InjectText([]any{"a", "b"}, "new")
		if !reflect.DeepEqual(out, []any{"new"}) {
			t.Errorf("got %v", out)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		in := map[string]any{"response": "original words"}
		out := InjectText(in, "replaced words")
		got, ok := ExtractText(out)
		if !ok || got != "replaced words" {
			t.Errorf("round trip got %q ok=%v", got, ok)
		}
	})
}
