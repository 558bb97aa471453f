package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/DamienDrash/arni-sub002/internal/actions"
)

var opsCancelKeywords = []string{"stornieren", "absagen", "cancel my booking", "termin löschen"}

// OpsHandler covers bookings: course reservations execute immediately
// (reversible), booking cancellations go through the one-way door.
type OpsHandler struct {
	executor actions.Executor
}

func NewOpsHandler(executor actions.Executor) *OpsHandler {
	return &OpsHandler{executor: executor}
}

func (h *OpsHandler) Name() string { return "ops" }

func (h *OpsHandler) Handle(ctx context.Context, msg Message, conv Context) (Response, error) {
	lower := strings.ToLower(msg.Text)

	for _, kw := range opsCancelKeywords {
		if strings.Contains(lower, kw) {
			return Response{
				Text: "Du möchtest deinen Termin stornieren. Soll ich das verbindlich für dich erledigen? Antworte mit JA zum Bestätigen.",
				Proposal: &Proposal{
					ActionType:   actions.TypeCancelBooking,
					Params:       map[string]string{"request": msg.Text},
					Irreversible: true,
					Prompt:       "Termin wirklich stornieren?",
				},
			}, nil
		}
	}

	// Reversible booking: execute right away.
	res, err := h.executor.Execute(ctx, actions.Action{
		Type:   actions.TypeBookCourse,
		Params: map[string]string{"request": msg.Text},
	})
	if err != nil {
		return Response{}, fmt.Errorf("book course: %w", err)
	}

	slot := res.Data["slot"]
	if slot == "" {
		return Response{Text: "Alles klar, ich habe deine Buchungsanfrage aufgenommen. Du bekommst gleich eine Bestätigung."}, nil
	}
	return Response{Text: fmt.Sprintf("Erledigt! Dein Platz ist reserviert: %s. Bis bald im Studio!", slot)}, nil
}
