package llmservice

import "testing"

func TestParseJSONObjectPlain(t *testing.T) {
	got := parseJSONObject(`{"a": 1, "b": "two"}`)
	if got == nil || got["a"].(float64) != 1 || got["b"] != "two" {
		t.Fatalf("unexpected parse result: %#v", got)
	}
}

func TestParseJSONObjectMarkdownFence(t *testing.T) {
	got := parseJSONObject("```json\n{\"a\": 1}\n```")
	if got == nil || got["a"].(float64) != 1 {
		t.Fatalf("unexpected parse result: %#v", got)
	}
}

func TestParseJSONObjectWithSurroundingProse(t *testing.T) {
	got := parseJSONObject("Sure, here you go: {\"a\": 1} Hope that helps!")
	if got == nil || got["a"].(float64) != 1 {
		t.Fatalf("unexpected parse result: %#v", got)
	}
}

func TestParseJSONObjectInvalidReturnsNil(t *testing.T) {
	if got := parseJSONObject("not json at all"); got != nil {
		t.Fatalf("expected nil for invalid json, got %#v", got)
	}
}

func TestParseClassification(t *testing.T) {
	got := parseClassification(`{"topicID": null, "topicTitle": "Unclassified", "threadID": null, "threadTitle": "General", "isNewTopic": true, "isNewThread": true}`)
	if got == nil {
		t.Fatalf("expected non-nil classification")
	}
	if got.TopicID != nil || got.TopicTitle != "Unclassified" || !got.IsNewTopic || !got.IsNewThread {
		t.Fatalf("unexpected classification: %+v", got)
	}
}
