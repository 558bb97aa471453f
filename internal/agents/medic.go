package agents

import (
	"context"
	"strings"
)

// MedicHandler gives careful training guidance for health questions. The
// regulatory disclaimer is appended by the orchestrator, never here, so a
// handler bug can't drop it.
type MedicHandler struct{}

func NewMedicHandler() *MedicHandler { return &MedicHandler{} }

func (h *MedicHandler) Name() string { return "medic" }

func (h *MedicHandler) Handle(_ context.Context, msg Message, conv Context) (Response, error) {
	lower := strings.ToLower(msg.Text)

	for _, f := range conv.Facts {
		if f.Relation == "HAS_INJURY" {
			return Response{
				Text: "Da du mir von deiner Verletzung erzählt hast: Bitte belaste die Stelle nicht zu früh. Sanfte Mobilisation und die Geräte mit geführter Bewegung sind ein guter Start. Unser Trainerteam stellt dir gern einen angepassten Plan zusammen.",
			}, nil
		}
	}

	switch {
	case strings.Contains(lower, "muskelkater"):
		return Response{Text: "Muskelkater ist normal nach neuen Reizen. Leichte Bewegung, Wärme und ausreichend Wasser helfen. Mit dem nächsten intensiven Training wartest du am besten, bis er abgeklungen ist."}, nil
	case strings.Contains(lower, "erkältung") || strings.Contains(lower, "krank"):
		return Response{Text: "Mit einer Erkältung lieber pausieren – vor allem bei Fieber gehört der Körper in die Erholung, nicht ans Eisen. Komm wieder, wenn du dich fit fühlst."}, nil
	default:
		return Response{Text: "Hör auf deinen Körper und steigere die Belastung langsam. Wenn die Beschwerden anhalten, sprich unser Trainerteam direkt im Studio an – die schauen sich das gern mit dir an."}, nil
	}
}
