package agents

import (
	"context"
	"strings"
)

// PersonaReplacement is the in-persona text used when the output filter has
// to swap out a forbidden draft.
const PersonaReplacement = "Da muss ich kurz passen – das klärt unser Team im Studio am schnellsten für dich. Kann ich dir sonst weiterhelfen?"

// PersonaHandler keeps smalltalk warm and on-brand.
type PersonaHandler struct{}

func NewPersonaHandler() *PersonaHandler { return &PersonaHandler{} }

func (h *PersonaHandler) Name() string { return "persona" }

func (h *PersonaHandler) Handle(_ context.Context, msg Message, conv Context) (Response, error) {
	lower := strings.ToLower(msg.Text)

	switch {
	case strings.Contains(lower, "danke"):
		return Response{Text: "Sehr gern! Dafür bin ich da. Bis bald im Studio!"}, nil
	case strings.Contains(lower, "hallo") || strings.Contains(lower, "hi ") || lower == "hi":
		return Response{Text: "Hallo! Schön, von dir zu hören. Wie kann ich dir heute helfen – Kurs buchen, Tarife oder einfach quatschen?"}, nil
	case strings.Contains(lower, "öffnungszeit") || strings.Contains(lower, "wann habt ihr auf"):
		return Response{Text: "Wir haben täglich von 6 bis 23 Uhr geöffnet, am Wochenende von 8 bis 22 Uhr."}, nil
	default:
		return Response{Text: "Das klingt spannend! Wenn ich dir rund ums Training, Kurse oder deine Mitgliedschaft helfen kann, sag einfach Bescheid."}, nil
	}
}
