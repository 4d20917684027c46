package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	raw := []byte(`{"type":"chat_message","session_id":"s1","message":"hello","top_k":3}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.SessionID != "s1" || msg.Message != "hello" || msg.TopK != 3 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestParseClientMessageRejectsEmptyMessage(t *testing.T) {
	raw := []byte(`{"type":"chat_message","message":"   "}`)
	if _, err := ParseClientMessage(raw); err == nil {
		t.Fatalf("blank message should be rejected")
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	raw := []byte(`{"type":"assistant_answer","answer":"nope"}`)
	_, err := ParseClientMessage(raw)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte("{not json")); err == nil {
		t.Fatalf("malformed frame should be rejected")
	}
}
