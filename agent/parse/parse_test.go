package parse

import (
	"testing"
)

func TestExtractObjectNested(t *testing.T) {
	t.Parallel()

	in := `TOOL_CALL: {"tool":"shopify_get_order_details","params":{"orderId":"NP123","meta":{"depth":2}}} trailing text`
	obj, ok := ExtractObject(in)
	if !ok {
		t.Fatalf("expected balanced object, got none")
	}
	want := `{"tool":"shopify_get_order_details","params":{"orderId":"NP123","meta":{"depth":2}}}`
	if obj != want {
		t.Fatalf("object mismatch:\n got %s\nwant %s", obj, want)
	}
}

func TestExtractObjectEscapedBraceInString(t *testing.T) {
	t.Parallel()

	in := `{"tool":"x","params":{"a":"{\"b\":1}"}}`
	obj, ok := ExtractObject(in + " extra")
	if !ok {
		t.Fatalf("expected balanced object, got none")
	}
	if obj != in {
		t.Fatalf("object mismatch:\n got %s\nwant %s", obj, in)
	}
}

func TestExtractObjectUnbalanced(t *testing.T) {
	t.Parallel()

	if _, ok := ExtractObject(`{"tool":"x","params":{`); ok {
		t.Fatalf("expected no object for unbalanced input")
	}
	if _, ok := ExtractObject("no json here"); ok {
		t.Fatalf("expected no object for plain text")
	}
}

func TestStripFence(t *testing.T) {
	t.Parallel()

	in := "```json\n{\"category\":\"refund_request\"}\n```"
	got := StripFence(in)
	if got != `{"category":"refund_request"}` {
		t.Fatalf("unexpected fence strip result: %q", got)
	}

	plain := `{"a":1}`
	if StripFence(plain) != plain {
		t.Fatalf("plain input should pass through")
	}
}

func TestNextToolCallPrecedence(t *testing.T) {
	t.Parallel()

	in := `TOOL_CALL: {"tool":"shopify_add_tags","params":{"id":"gid://1","tags":["vip"]}}
ESCALATE: {"reason":"ignored"}`

	out := Next(in)
	if out.Kind != KindToolCall {
		t.Fatalf("expected tool call, got kind %d err %v", out.Kind, out.Err)
	}
	if out.Tool.Tool != "shopify_add_tags" {
		t.Fatalf("unexpected tool name %q", out.Tool.Tool)
	}
	if out.Tool.Params["id"] != "gid://1" {
		t.Fatalf("unexpected params %v", out.Tool.Params)
	}
}

func TestNextMalformedToolCall(t *testing.T) {
	t.Parallel()

	out := Next(`TOOL_CALL: {"tool": "broken",`)
	if out.Kind != KindMalformedToolCall {
		t.Fatalf("expected malformed tool call, got %d", out.Kind)
	}
	if out.Err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNextEscalation(t *testing.T) {
	t.Parallel()

	in := `ESCALATE: {"reason":"legal threat","summary":{"recommendedAction":"Call customer","priority":"high"}}`
	out := Next(in)
	if out.Kind != KindEscalation {
		t.Fatalf("expected escalation, got %d", out.Kind)
	}
	if out.Escalation.Reason != "legal threat" {
		t.Fatalf("unexpected reason %q", out.Escalation.Reason)
	}
	if out.Escalation.Summary.Priority != "high" {
		t.Fatalf("unexpected priority %q", out.Escalation.Summary.Priority)
	}
}

func TestNextPlainReply(t *testing.T) {
	t.Parallel()

	out := Next("RESPONSE: Hi there!")
	if out.Kind != KindReply {
		t.Fatalf("expected reply kind, got %d", out.Kind)
	}
}

func TestFinalReply(t *testing.T) {
	t.Parallel()

	reply, ok := FinalReply("RESPONSE: Hi Anna, your order shipped!\n\nCaz")
	if !ok {
		t.Fatalf("expected reply")
	}
	if reply != "Hi Anna, your order shipped!\n\nCaz" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestFinalReplyStopsAtNextMarker(t *testing.T) {
	t.Parallel()

	reply, ok := FinalReply(`RESPONSE: Let me check that. TOOL_CALL: {"tool":"x","params":{}}`)
	if !ok {
		t.Fatalf("expected reply")
	}
	if reply != "Let me check that." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestFinalReplyMissing(t *testing.T) {
	t.Parallel()

	if _, ok := FinalReply("no marker at all"); ok {
		t.Fatalf("expected no reply")
	}
}

func TestCleanedStripsMarkers(t *testing.T) {
	t.Parallel()

	in := "TOOL_CALL: {\"tool\":\"x\"}\nThanks for waiting!\n\n```json\n{}\n```"
	got := Cleaned(in)
	if got != "Thanks for waiting!" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
}

func TestLastParagraph(t *testing.T) {
	t.Parallel()

	in := "TOOL_CALL: {\"tool\":\"x\"}\n\n{\"raw\": true}\n\nHere is your update, Anna!"
	got, ok := LastParagraph(in)
	if !ok {
		t.Fatalf("expected a paragraph")
	}
	if got != "Here is your update, Anna!" {
		t.Fatalf("unexpected paragraph %q", got)
	}

	if _, ok := LastParagraph("TOOL_CALL: {}\n\n{\"only\": \"json\"}"); ok {
		t.Fatalf("expected no usable paragraph")
	}
}

func TestEscalationAbsent(t *testing.T) {
	t.Parallel()

	_, found, err := Escalation("RESPONSE: all good")
	if found || err != nil {
		t.Fatalf("expected no escalation, found=%t err=%v", found, err)
	}
}

func TestEscalationMalformed(t *testing.T) {
	t.Parallel()

	_, found, err := Escalation("ESCALATE: not json")
	if !found {
		t.Fatalf("expected marker to be found")
	}
	if err == nil {
		t.Fatalf("expected decode error")
	}
}
