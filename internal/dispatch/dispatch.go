package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DamienDrash/arni-sub002/internal/actions"
	"github.com/DamienDrash/arni-sub002/internal/agents"
	"github.com/DamienDrash/arni-sub002/internal/conversation"
	"github.com/DamienDrash/arni-sub002/internal/intent"
)

// Confirmation lifecycle events, reported back to the caller so the
// orchestrator can count them without reaching into conversation state.
const (
	EventProposed  = "proposed"
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
	EventExpired   = "expired"
	EventReverted  = "reverted"
	EventFailed    = "failed"
)

// affirmatives and negatives are matched as whole normalized turns, never as
// substrings. "Ja, aber erst nächste Woche" is a fresh turn, not a confirmation.
var affirmatives = map[string]bool{
	"ja":         true,
	"jawohl":     true,
	"ja bitte":   true,
	"yes":        true,
	"ok":         true,
	"okay":       true,
	"passt":      true,
	"bestätigen": true,
	"confirm":    true,
}

var negatives = map[string]bool{
	"nein":         true,
	"no":           true,
	"abbrechen":    true,
	"cancel":       true,
	"stop":         true,
	"stopp":        true,
	"lieber nicht": true,
}

// Outcome is what one turn produced: either a reply from the confirmation
// machinery (Handled) or a handler response routed by intent.
type Outcome struct {
	Handled  bool
	Agent    string
	Text     string
	Event    string
	Executed *actions.Result
}

// Table routes classified turns to specialized handlers and owns the
// confirmation gate in front of irreversible actions.
type Table struct {
	handlers map[string]agents.Handler
	fallback agents.Handler
	executor actions.Executor
	ttl      time.Duration
	now      func() time.Time
}

func NewTable(executor actions.Executor, ttl time.Duration) *Table {
	return &Table{
		handlers: make(map[string]agents.Handler),
		executor: executor,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register binds a handler to an intent label. The smalltalk handler doubles
// as the fallback for labels nothing else claims.
func (t *Table) Register(label string, h agents.Handler) {
	t.handlers[label] = h
	if label == intent.LabelSmalltalk {
		t.fallback = h
	}
}

func (t *Table) handlerFor(label string) agents.Handler {
	if h, ok := t.handlers[label]; ok {
		return h
	}
	return t.fallback
}

func normalizeReply(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(s, "!.?, ")
}

// CheckPending runs before classification. When the conversation carries an
// awaiting confirmation it consumes affirmative or negative turns; anything
// else falls through as a fresh turn with the slot left untouched. An expired
// slot is dropped first, so a late "JA" can never trigger the stale action.
func (t *Table) CheckPending(ctx context.Context, conv *conversation.Conversation, text string) (Outcome, bool) {
	now := t.now()
	if conv.ExpirePendingIfDue(now) {
		return Outcome{Event: EventExpired}, false
	}
	pending := conv.Pending()
	if pending == nil || pending.State != conversation.ConfirmAwaiting {
		return Outcome{}, false
	}

	switch reply := normalizeReply(text); {
	case affirmatives[reply]:
		confirmed, ok := conv.ConfirmPending(now)
		if !ok {
			// Raced with expiry or a duplicate turn; nothing executes.
			return Outcome{Event: EventExpired}, false
		}
		return t.execute(ctx, conv, confirmed), true
	case negatives[reply]:
		if conv.CancelPending() {
			return Outcome{
				Handled: true,
				Agent:   pending.Agent,
				Text:    "Okay, ich habe nichts geändert.",
				Event:   EventCancelled,
			}, true
		}
		return Outcome{}, false
	default:
		return Outcome{}, false
	}
}

// execute runs the confirmed action exactly once. On a retryable failure the
// slot reverts to awaiting with its original expiry; on a fatal failure it is
// cleared so the user is not trapped re-confirming a dead action.
func (t *Table) execute(ctx context.Context, conv *conversation.Conversation, p conversation.PendingConfirmation) Outcome {
	res, err := t.executor.Execute(ctx, actions.Action{
		Type:           p.ActionType,
		ConversationID: conv.ID,
		Params:         p.Params,
	})
	if err != nil {
		if actions.Retryable(err) {
			conv.RevertPending(p)
			return Outcome{
				Handled: true,
				Agent:   p.Agent,
				Text:    "Das hat gerade nicht geklappt. Deine Bestätigung bleibt bestehen – antworte einfach nochmal mit JA, dann versuche ich es erneut.",
				Event:   EventReverted,
			}
		}
		conv.ClearPending()
		return Outcome{
			Handled: true,
			Agent:   p.Agent,
			Text:    "Das konnte leider nicht ausgeführt werden. Melde dich bitte kurz am Empfang, das Team hilft dir sofort weiter.",
			Event:   EventFailed,
		}
	}

	conv.ClearPending()
	return Outcome{
		Handled:  true,
		Agent:    p.Agent,
		Text:     executedText(p.ActionType),
		Event:    EventConfirmed,
		Executed: &res,
	}
}

func executedText(actionType string) string {
	switch actionType {
	case actions.TypeCancelBooking:
		return "Erledigt, deine Buchung ist storniert."
	case actions.TypeCancelMembership:
		return "Deine Kündigung ist eingereicht. Die schriftliche Bestätigung kommt per E-Mail."
	case actions.TypeChangePlan:
		return "Dein Tarifwechsel ist eingetragen und gilt ab dem nächsten Abrechnungszeitraum."
	default:
		return "Erledigt!"
	}
}

// Dispatch routes a fresh turn to the handler for its intent label. An
// irreversible proposal never executes here; it is parked on the conversation
// and answered with the handler's reply. The short prompt stays on the slot
// for re-asks.
func (t *Table) Dispatch(ctx context.Context, conv *conversation.Conversation, msg agents.Message, convCtx agents.Context) (Outcome, error) {
	h := t.handlerFor(msg.Intent.Label)
	if h == nil {
		return Outcome{}, fmt.Errorf("no handler for intent %q and no fallback registered", msg.Intent.Label)
	}

	resp, err := h.Handle(ctx, msg, convCtx)
	if err != nil {
		return Outcome{Agent: h.Name()}, fmt.Errorf("handler %s: %w", h.Name(), err)
	}

	if resp.Proposal != nil && resp.Proposal.Irreversible {
		now := t.now()
		conv.SetPending(conversation.PendingConfirmation{
			ActionType: resp.Proposal.ActionType,
			Params:     resp.Proposal.Params,
			Prompt:     resp.Proposal.Prompt,
			Agent:      h.Name(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(t.ttl),
		})
		text := resp.Text
		if text == "" {
			text = resp.Proposal.Prompt
		}
		return Outcome{Agent: h.Name(), Text: text, Event: EventProposed}, nil
	}

	return Outcome{Agent: h.Name(), Text: resp.Text}, nil
}
