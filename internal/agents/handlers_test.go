package agents

import (
	"context"
	"testing"

	"github.com/DamienDrash/arni-sub002/internal/actions"
	"github.com/DamienDrash/arni-sub002/internal/memory"
)

func TestOpsHandlerBooksImmediately(t *testing.T) {
	exec := actions.NewMockExecutor()
	exec.SetResult(actions.Result{Status: "ok", Data: map[string]string{"slot": "Yoga Di 18:00"}})
	h := NewOpsHandler(exec)

	res, err := h.Handle(context.Background(), Message{Text: "Ich möchte Dienstag Yoga buchen"}, Context{})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Proposal != nil {
		t.Fatalf("reversible booking should not create a proposal")
	}
	if len(exec.Calls()) != 1 {
		t.Fatalf("executor calls = %d, want 1", len(exec.Calls()))
	}
}

func TestOpsHandlerCancellationIsProposedNotExecuted(t *testing.T) {
	exec := actions.NewMockExecutor()
	h := NewOpsHandler(exec)

	res, err := h.Handle(context.Background(), Message{Text: "Bitte meinen Termin stornieren"}, Context{})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Proposal == nil || !res.Proposal.Irreversible {
		t.Fatalf("cancellation must yield an irreversible proposal, got %+v", res.Proposal)
	}
	if res.Proposal.ActionType != actions.TypeCancelBooking {
		t.Fatalf("ActionType = %q, want %q", res.Proposal.ActionType, actions.TypeCancelBooking)
	}
	if len(exec.Calls()) != 0 {
		t.Fatalf("executor must not run before confirmation, calls = %d", len(exec.Calls()))
	}
}

func TestSalesHandlerCancellationProposal(t *testing.T) {
	h := NewSalesHandler()
	res, err := h.Handle(context.Background(), Message{Text: "Ich will meinen Vertrag kündigen"}, Context{})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Proposal == nil || res.Proposal.ActionType != actions.TypeCancelMembership {
		t.Fatalf("proposal = %+v, want cancel_membership", res.Proposal)
	}
}

func TestMedicHandlerUsesKnownInjuryFacts(t *testing.T) {
	h := NewMedicHandler()
	conv := Context{Facts: []memory.Fact{{Relation: "HAS_INJURY", Entity: "knee", Statement: "has knee injury"}}}

	res, err := h.Handle(context.Background(), Message{Text: "Kann ich wieder Beine trainieren?"}, conv)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Text == "" || res.Proposal != nil {
		t.Fatalf("unexpected medic response: %+v", res)
	}
}

func TestVisionHandlerReturnsScalarFromFrame(t *testing.T) {
	exec := actions.NewMockExecutor()
	exec.SetResult(actions.Result{Status: "ok", Data: map[string]string{"count": "14", "level": "mittel"}})
	h := NewVisionHandler(exec)

	res, err := h.Handle(context.Background(), Message{Attachments: [][]byte{[]byte("jpeg-bytes")}}, Context{})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Text == "" {
		t.Fatalf("empty vision response")
	}
	if len(exec.Calls()) != 1 {
		t.Fatalf("executor calls = %d, want 1", len(exec.Calls()))
	}
}

func TestPersonaHandlerDefaultsInPersona(t *testing.T) {
	h := NewPersonaHandler()
	res, err := h.Handle(context.Background(), Message{Text: "Erzähl mir was über Piraten"}, Context{})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if res.Text == "" || res.Proposal != nil {
		t.Fatalf("unexpected persona response: %+v", res)
	}
}
