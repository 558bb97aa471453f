package agents

import (
	"context"

	"github.com/DamienDrash/arni-sub002/internal/intent"
	"github.com/DamienDrash/arni-sub002/internal/memory"
)

// Message is one inbound turn as the handlers see it.
type Message struct {
	Text        string
	Channel     string
	Attachments [][]byte
	Intent      intent.Result
}

// Context is the read-only conversation context handlers receive. Handlers
// never write to memory; the orchestrator commits their responses.
type Context struct {
	MemberID string
	Summary  string
	Window   []memory.Turn
	Facts    []memory.Fact
}

// Proposal is an action a handler wants executed. Irreversible proposals go
// through the one-way-door confirmation before any execution.
type Proposal struct {
	ActionType   string
	Params       map[string]string
	Irreversible bool
	Prompt       string
}

// Response is a handler's reply plus at most one proposed action.
type Response struct {
	Text     string
	Proposal *Proposal
}

// Handler is the single capability interface all specialized agents
// implement; dispatch resolves the variant via the intent label.
type Handler interface {
	Name() string
	Handle(ctx context.Context, msg Message, conv Context) (Response, error)
}
