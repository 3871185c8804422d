package v1

import (
	"errors"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	raw := `{"type":"chat","from":"a@x","to":"b@x","conversationId":"c-1","message":"hi","extra":"kept"}`

	in, err := DecodeInbound([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Type != TypeChat || in.From != "a@x" || in.To != "b@x" || in.ConversationID != "c-1" || in.Message != "hi" {
		t.Fatalf("decoded: %+v", in)
	}
	if string(in.Raw) != raw {
		t.Fatalf("raw bytes must be preserved verbatim, got %s", in.Raw)
	}
}

func TestDecodeInbound_MissingType(t *testing.T) {
	for _, raw := range []string{`{}`, `{"type":"  "}`, `{"to":"b@x"}`} {
		if _, err := DecodeInbound([]byte(raw)); !errors.Is(err, ErrMissingType) {
			t.Fatalf("%s: want ErrMissingType, got %v", raw, err)
		}
	}
}

func TestDecodeInbound_BadJSON(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{broken`)); err == nil {
		t.Fatalf("invalid JSON must error")
	}
}
