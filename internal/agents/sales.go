package agents

import (
	"context"
	"strings"

	"github.com/DamienDrash/arni-sub002/internal/actions"
)

var (
	salesCancelKeywords = []string{"kündigen", "kündigung", "cancel my plan", "cancel membership", "vertrag beenden"}
	salesChangeKeywords = []string{"upgrade", "downgrade", "tarif wechseln", "change my plan", "anderen tarif"}
)

// SalesHandler answers plan and pricing questions. Plan changes and
// membership cancellations are irreversible and require confirmation.
type SalesHandler struct{}

func NewSalesHandler() *SalesHandler { return &SalesHandler{} }

func (h *SalesHandler) Name() string { return "sales" }

func (h *SalesHandler) Handle(_ context.Context, msg Message, conv Context) (Response, error) {
	lower := strings.ToLower(msg.Text)

	for _, kw := range salesCancelKeywords {
		if strings.Contains(lower, kw) {
			return Response{
				Text: "Schade, dass du gehen möchtest! Soll ich die Kündigung wirklich einleiten? Antworte mit JA zum Bestätigen – oder erzähl mir, was dich stört, vielleicht finden wir eine bessere Lösung.",
				Proposal: &Proposal{
					ActionType:   actions.TypeCancelMembership,
					Params:       map[string]string{"request": msg.Text},
					Irreversible: true,
					Prompt:       "Mitgliedschaft wirklich kündigen?",
				},
			}, nil
		}
	}

	for _, kw := range salesChangeKeywords {
		if strings.Contains(lower, kw) {
			return Response{
				Text: "Gerne passe ich deinen Tarif an. Soll ich den Wechsel verbindlich machen? Antworte mit JA zum Bestätigen.",
				Proposal: &Proposal{
					ActionType:   actions.TypeChangePlan,
					Params:       map[string]string{"request": msg.Text},
					Irreversible: true,
					Prompt:       "Tarif wirklich wechseln?",
				},
			}, nil
		}
	}

	if strings.Contains(lower, "probetraining") {
		return Response{Text: "Sehr gerne! Das Probetraining ist kostenlos – sag mir einfach, wann du vorbeikommen möchtest, und ich reserviere dir einen Termin."}, nil
	}

	return Response{Text: "Unsere Mitgliedschaften starten bei 29,90 € im Monat, inklusive aller Kurse und des Freihantelbereichs. Soll ich dir die Tarife im Detail schicken oder direkt ein kostenloses Probetraining reservieren?"}, nil
}
