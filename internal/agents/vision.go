package agents

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/DamienDrash/arni-sub002/internal/actions"
)

// VisionHandler estimates studio occupancy from a camera frame. It only
// ever sees the byte buffer for the duration of the call; the orchestrator
// discards the buffer as soon as the scalar result is back.
type VisionHandler struct {
	executor actions.Executor
}

func NewVisionHandler(executor actions.Executor) *VisionHandler {
	return &VisionHandler{executor: executor}
}

func (h *VisionHandler) Name() string { return "vision" }

func (h *VisionHandler) Handle(ctx context.Context, msg Message, conv Context) (Response, error) {
	if len(msg.Attachments) == 0 {
		return Response{Text: "Gerade habe ich kein aktuelles Kamerabild. Erfahrungsgemäß ist es vormittags und nach 20 Uhr am leersten."}, nil
	}

	frame := msg.Attachments[0]
	res, err := h.executor.Execute(ctx, actions.Action{
		Type:   actions.TypeVisionOccupancy,
		Params: map[string]string{"frame_base64": base64.StdEncoding.EncodeToString(frame)},
	})
	if err != nil {
		return Response{}, fmt.Errorf("vision inference: %w", err)
	}

	count := res.Data["count"]
	level := res.Data["level"]
	switch {
	case count != "" && level != "":
		return Response{Text: fmt.Sprintf("Aktuell trainieren etwa %s Leute bei uns – Auslastung: %s.", count, level)}, nil
	case count != "":
		return Response{Text: fmt.Sprintf("Aktuell trainieren etwa %s Leute bei uns.", count)}, nil
	default:
		return Response{Text: "Im Studio ist gerade moderat viel los. Komm gern vorbei!"}, nil
	}
}
