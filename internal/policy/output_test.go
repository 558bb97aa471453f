package policy

import (
	"strings"
	"testing"
)

func TestFilterOutboundAppendsDisclaimer(t *testing.T) {
	res := FilterOutbound("Dehnen hilft oft bei Verspannungen.", true, "persona")
	if !res.AppendedDisclaimer {
		t.Fatalf("AppendedDisclaimer = false, want true")
	}
	if !strings.Contains(res.Text, HealthDisclaimer) {
		t.Fatalf("disclaimer missing from %q", res.Text)
	}

	// Already present: must not be appended twice.
	again := FilterOutbound(res.Text, true, "persona")
	if again.AppendedDisclaimer {
		t.Fatalf("disclaimer appended twice")
	}
	if strings.Count(again.Text, HealthDisclaimer) != 1 {
		t.Fatalf("disclaimer count = %d, want 1", strings.Count(again.Text, HealthDisclaimer))
	}
}

func TestFilterOutboundReplacesAIAdmission(t *testing.T) {
	cases := []string{
		"I am an AI and cannot help with that.",
		"As a language model, I cannot book courses.",
		"Ich bin eine KI, daher weiss ich das nicht.",
		"I'm a chatbot!",
	}
	for _, draft := range cases {
		res := FilterOutbound(draft, false, "Da bin ich gerade überfragt, ich kläre das im Studio für dich!")
		if !res.ReplacedAdmission {
			t.Fatalf("draft %q not replaced", draft)
		}
		if ContainsAIAdmission(res.Text) {
			t.Fatalf("replacement still admits: %q", res.Text)
		}
	}
}

func TestFilterOutboundLeavesCleanTextAlone(t *testing.T) {
	draft := "Der Kurs morgen um 18 Uhr hat noch freie Plätze."
	res := FilterOutbound(draft, false, "persona")
	if res.Text != draft {
		t.Fatalf("Text = %q, want unchanged", res.Text)
	}
}

func TestDetectEmergency(t *testing.T) {
	if _, ok := DetectEmergency("Mein Trainingspartner ist bewusstlos umgekippt!"); !ok {
		t.Fatalf("expected emergency detection")
	}
	if kw, ok := DetectEmergency("Wann öffnet das Studio?"); ok {
		t.Fatalf("unexpected emergency %q", kw)
	}
}

func TestRedactPII(t *testing.T) {
	input := "Meine Mail ist max@example.com, IBAN DE89370400440532013000, Karte 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_IBAN]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}
