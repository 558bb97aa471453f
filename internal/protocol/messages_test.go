package protocol

import (
	"errors"
	"testing"
)

func TestParseInboundMessageDefaults(t *testing.T) {
	raw := []byte(`{"conversation_id":"c1","channel":"whatsapp","text":"hallo"}`)
	msg, err := ParseInboundMessage(raw)
	if err != nil {
		t.Fatalf("ParseInboundMessage() error = %v", err)
	}
	if msg.Type != TypeInboundMessage {
		t.Fatalf("Type = %q, want %q", msg.Type, TypeInboundMessage)
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatalf("ReceivedAt should be defaulted")
	}
}

func TestParseInboundMessageRejectsEmpty(t *testing.T) {
	if _, err := ParseInboundMessage([]byte(`{"conversation_id":"c1","channel":"whatsapp"}`)); err == nil {
		t.Fatalf("expected error for message without text or attachments")
	}
	if _, err := ParseInboundMessage([]byte(`{"text":"hi"}`)); err == nil {
		t.Fatalf("expected error for message without identity")
	}
}

func TestParseOperatorMessageOverride(t *testing.T) {
	raw := []byte(`{"type":"operator_override","conversation_id":"c1","draft_id":"d1","operator_id":"op1","text":"corrected"}`)
	msg, err := ParseOperatorMessage(raw)
	if err != nil {
		t.Fatalf("ParseOperatorMessage() error = %v", err)
	}
	ov, ok := msg.(OperatorOverride)
	if !ok {
		t.Fatalf("message type = %T, want OperatorOverride", msg)
	}
	if ov.Text != "corrected" {
		t.Fatalf("Text = %q, want %q", ov.Text, "corrected")
	}
}

func TestParseOperatorMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseOperatorMessage([]byte(`{"type":"mystery"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseOperatorMessageValidatesFields(t *testing.T) {
	if _, err := ParseOperatorMessage([]byte(`{"type":"operator_override","conversation_id":"c1"}`)); err == nil {
		t.Fatalf("expected validation error for incomplete override")
	}
	if _, err := ParseOperatorMessage([]byte(`{"type":"operator_observe","operator_id":"op1"}`)); err == nil {
		t.Fatalf("expected validation error for observe without conversation")
	}
}
