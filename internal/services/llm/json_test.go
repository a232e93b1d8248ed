package llm

import "testing"

func TestDecodeLLMJSONHandlesFences(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	cases := []string{
		`{"ok":true}`,
		"```json\n{\"ok\":true}\n```",
		"Here is the result:\n{\"ok\":true}\nDone.",
	}
	for _, input := range cases {
		parsed.OK = false
		if err := DecodeLLMJSON(input, &parsed); err != nil {
			t.Fatalf("DecodeLLMJSON(%q) failed: %v", input, err)
		}
		if !parsed.OK {
			t.Fatalf("DecodeLLMJSON(%q) lost payload", input)
		}
	}
}

func TestDecodeLLMJSONRejectsGarbage(t *testing.T) {
	var parsed map[string]any
	if err := DecodeLLMJSON("not json at all", &parsed); err == nil {
		t.Fatal("expected error")
	}
	if err := DecodeLLMJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"```python\nfrom manim import *\n```", "from manim import *"},
		{"```\nplain\n```", "plain"},
		{"no fence here", "no fence here"},
	}
	for _, tc := range cases {
		if got := StripCodeFence(tc.input); got != tc.want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestExtractJSONArray(t *testing.T) {
	input := `The issues are: [{"kind":"overlap","note":"a ] inside \" string"},{"kind":"other"}] hope that helps`
	got := ExtractJSONArray(input)
	if got == "" {
		t.Fatal("expected array extraction")
	}
	if got[0] != '[' || got[len(got)-1] != ']' {
		t.Fatalf("unbalanced extraction %q", got)
	}
	if ExtractJSONArray("no array") != "" {
		t.Fatal("expected empty result when no array present")
	}
	if ExtractJSONArray("[1, 2") != "" {
		t.Fatal("expected empty result for unbalanced array")
	}
}
