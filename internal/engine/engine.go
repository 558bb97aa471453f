package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DamienDrash/arni-sub002/internal/agents"
	"github.com/DamienDrash/arni-sub002/internal/bus"
	"github.com/DamienDrash/arni-sub002/internal/consent"
	"github.com/DamienDrash/arni-sub002/internal/conversation"
	"github.com/DamienDrash/arni-sub002/internal/dispatch"
	"github.com/DamienDrash/arni-sub002/internal/ghost"
	"github.com/DamienDrash/arni-sub002/internal/intent"
	"github.com/DamienDrash/arni-sub002/internal/memory"
	"github.com/DamienDrash/arni-sub002/internal/observability"
	"github.com/DamienDrash/arni-sub002/internal/policy"
	"github.com/DamienDrash/arni-sub002/internal/protocol"
)

// ErrQueueFull is returned when a conversation's inbound queue is saturated.
var ErrQueueFull = errors.New("engine: conversation queue full")

const (
	workerQueueSize = 32
	workerIdleAfter = 5 * time.Minute
	contextTurns    = 3
)

const (
	emergencyReply = "Das klingt nach einem Notfall. Bitte ruf sofort die 112 an oder wende dich an das Studio-Personal vor Ort. Ich informiere parallel unser Team."
	revokedReply   = "Deine Daten wurden auf deinen Wunsch gelöscht und ich speichere nichts Neues. Wenn du ARNI wieder nutzen möchtest, gib am Empfang erneut deine Einwilligung."
)

// Engine runs the conversation loop: consent gate, confirmation check,
// intent routing, dispatch, output policy, ghost window, memory commit,
// outbound publish. Each conversation is processed by at most one worker.
type Engine struct {
	tenantID      string
	conversations *conversation.Manager
	gate          *consent.Gate
	tiers         *memory.Manager
	router        *intent.Router
	table         *dispatch.Table
	supervisor    *ghost.Supervisor
	bus           *bus.Bus
	metrics       *observability.Metrics

	ctx     context.Context
	mu      sync.Mutex
	workers map[string]chan protocol.InboundMessage
	wg      sync.WaitGroup
}

// Deps collects everything the engine composes.
type Deps struct {
	TenantID      string
	Conversations *conversation.Manager
	Gate          *consent.Gate
	Tiers         *memory.Manager
	Router        *intent.Router
	Table         *dispatch.Table
	Supervisor    *ghost.Supervisor
	Bus           *bus.Bus
	Metrics       *observability.Metrics
}

func New(d Deps) *Engine {
	return &Engine{
		tenantID:      d.TenantID,
		conversations: d.Conversations,
		gate:          d.Gate,
		tiers:         d.Tiers,
		router:        d.Router,
		table:         d.Table,
		supervisor:    d.Supervisor,
		bus:           d.Bus,
		metrics:       d.Metrics,
		workers:       make(map[string]chan protocol.InboundMessage),
	}
}

// Start binds the engine lifetime to ctx. Workers spawned afterwards exit
// when ctx is cancelled; Stop waits for in-flight turns to drain.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
}

// Stop blocks until every conversation worker has finished its current turn.
func (e *Engine) Stop() {
	e.wg.Wait()
}

// HandleInbound enqueues one turn onto its conversation's serialized worker.
// Turns within one conversation are processed in arrival order.
func (e *Engine) HandleInbound(msg protocol.InboundMessage) error {
	if e.ctx == nil {
		return errors.New("engine: not started")
	}

	e.mu.Lock()
	ch, ok := e.workers[msg.ConversationID]
	if !ok {
		ch = make(chan protocol.InboundMessage, workerQueueSize)
		e.workers[msg.ConversationID] = ch
		e.wg.Add(1)
		go e.runWorker(msg.ConversationID, ch)
	}
	e.mu.Unlock()

	select {
	case ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Engine) runWorker(conversationID string, ch chan protocol.InboundMessage) {
	defer e.wg.Done()

	idle := time.NewTimer(workerIdleAfter)
	defer idle.Stop()

	for {
		select {
		case msg := <-ch:
			e.processTurn(e.ctx, msg)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(workerIdleAfter)
		case <-idle.C:
			e.mu.Lock()
			if len(ch) == 0 {
				delete(e.workers, conversationID)
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			idle.Reset(workerIdleAfter)
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) processTurn(ctx context.Context, msg protocol.InboundMessage) {
	started := time.Now()

	conv, created := e.conversations.GetOrCreate(msg.ConversationID, e.tenantID, msg.ConversationID, msg.Channel)
	if created {
		e.countEvent("started")
	}
	if e.metrics != nil {
		e.metrics.ActiveConversations.Set(float64(e.conversations.ActiveCount()))
	}
	key := memory.Key{TenantID: conv.TenantID, ConversationID: conv.ID}
	memberID := conv.MemberID
	if memberID == "" {
		memberID = conv.ExternalUserID
	}

	if e.gate.Status(key) == consent.StatusRevoked {
		e.publishOutbound(conv, msg, revokedReply)
		return
	}

	// Emergency keywords bypass classification, dispatch and the ghost
	// window; the alert reaches the team regardless of any other state.
	if keyword, emergency := policy.DetectEmergency(msg.Text); emergency {
		e.bus.Publish(bus.Message{
			Topic:          bus.TopicAlerts,
			ConversationID: conv.ID,
			Payload: protocol.SystemEvent{
				Type:           protocol.TypeSystemEvent,
				ConversationID: conv.ID,
				Code:           "emergency",
				Detail:         keyword,
			},
		})
		e.countEvent("emergency")
		e.commitTurns(ctx, key, memberID, msg, emergencyReply, "")
		e.publishOutbound(conv, msg, emergencyReply)
		return
	}

	// An awaiting confirmation consumes affirmative and negative turns
	// before any classification happens.
	if out, handled := e.table.CheckPending(ctx, conv, msg.Text); handled || out.Event != "" {
		e.countConfirmation(out.Event)
		if handled {
			e.finishTurn(ctx, conv, key, memberID, msg, out.Text, "", started)
			return
		}
	}

	summary, window, err := e.gate.Context(key)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		log.Printf("engine: context read for %s: %v", conv.ID, err)
	}
	facts, err := e.gate.Facts(key, memberID)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		log.Printf("engine: facts read for %s: %v", conv.ID, err)
	}

	res := e.router.Classify(ctx, msg.Text, recentUserTexts(window))
	if e.metrics != nil {
		e.metrics.IntentResults.WithLabelValues(res.Label, res.Source).Inc()
	}

	out, err := e.table.Dispatch(ctx, conv, agents.Message{
		Text:        msg.Text,
		Channel:     msg.Channel,
		Attachments: msg.Attachments,
		Intent:      res,
	}, agents.Context{
		MemberID: memberID,
		Summary:  summary,
		Window:   window,
		Facts:    facts,
	})
	// The vision frame must not outlive the handler call.
	discardAttachments(msg.Attachments)
	msg.Attachments = nil
	if err != nil {
		if e.metrics != nil {
			e.metrics.HandlerErrors.WithLabelValues(out.Agent, "handler").Inc()
		}
		log.Printf("engine: dispatch for %s: %v", conv.ID, err)
		out.Text = "Da ist gerade etwas schiefgelaufen. Versuch es bitte gleich nochmal."
	}
	if out.Event != "" {
		e.countConfirmation(out.Event)
	}

	e.finishTurn(ctx, conv, key, memberID, msg, out.Text, res.Label, started)
}

// finishTurn runs the output policy, the ghost window, the memory commit and
// the outbound publish for one produced draft.
func (e *Engine) finishTurn(ctx context.Context, conv *conversation.Conversation, key memory.Key, memberID string, msg protocol.InboundMessage, draft, label string, started time.Time) {
	filtered := policy.FilterOutbound(draft, label == intent.LabelHealth, agents.PersonaReplacement)
	if e.metrics != nil {
		if filtered.ReplacedAdmission {
			e.metrics.PolicyCorrections.WithLabelValues("ai_admission").Inc()
		}
		if filtered.AppendedDisclaimer {
			e.metrics.PolicyCorrections.WithLabelValues("health_disclaimer").Inc()
		}
	}

	final := filtered.Text
	decision, err := e.supervisor.Review(ctx, ghost.Draft{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		UserText:       msg.Text,
		Text:           final,
		Intent:         label,
	})
	if err != nil {
		log.Printf("engine: ghost review for %s: %v", conv.ID, err)
	} else {
		final = decision.Text
	}
	if e.metrics != nil {
		outcome := "passthrough"
		if decision.Overridden {
			outcome = "override"
		}
		e.metrics.GhostOverrides.WithLabelValues(outcome).Inc()
	}

	e.commitTurns(ctx, key, memberID, msg, final, label)
	e.publishOutbound(conv, msg, final)
	if e.metrics != nil {
		e.metrics.ObserveDispatchLatency(time.Since(started))
	}
}

func (e *Engine) commitTurns(ctx context.Context, key memory.Key, memberID string, msg protocol.InboundMessage, reply, label string) {
	if _, err := e.gate.AppendTurn(ctx, key, memberID, memory.Turn{
		Role:        memory.RoleUser,
		Text:        msg.Text,
		Channel:     msg.Channel,
		IntentLabel: label,
	}); err != nil && !errors.Is(err, consent.ErrRevoked) {
		log.Printf("engine: commit user turn for %s: %v", key.ConversationID, err)
	}
	if _, err := e.gate.AppendTurn(ctx, key, memberID, memory.Turn{
		Role:        memory.RoleAssistant,
		Text:        reply,
		Channel:     msg.Channel,
		IntentLabel: label,
	}); err != nil && !errors.Is(err, consent.ErrRevoked) {
		log.Printf("engine: commit assistant turn for %s: %v", key.ConversationID, err)
	}
}

func (e *Engine) publishOutbound(conv *conversation.Conversation, msg protocol.InboundMessage, text string) {
	e.bus.Publish(bus.Message{
		Topic:          bus.TopicOutbound,
		ConversationID: conv.ID,
		Payload: protocol.OutboundMessage{
			Type:           protocol.TypeOutboundMessage,
			ConversationID: conv.ID,
			Channel:        msg.Channel,
			Text:           text,
			InResponseTo:   msg.MessageID,
		},
	})
	if err := e.conversations.Touch(conv.ID); err != nil {
		log.Printf("engine: touch %s: %v", conv.ID, err)
	}
}

// RevokeConsent erases the identity from every memory tier. Partial failure
// keeps consent revoked; the caller retries the same request.
func (e *Engine) RevokeConsent(ctx context.Context, conversationID string) error {
	conv, err := e.conversations.Get(conversationID)
	if err != nil {
		return err
	}
	key := memory.Key{TenantID: conv.TenantID, ConversationID: conv.ID}
	memberID := conv.MemberID
	if memberID == "" {
		memberID = conv.ExternalUserID
	}

	if err := e.gate.Revoke(ctx, key, memberID); err != nil {
		if e.metrics != nil {
			e.metrics.Erasures.WithLabelValues("failed").Inc()
		}
		return fmt.Errorf("erase %s: %w", conversationID, err)
	}
	// Erasure covers the aggregate too: a parked confirmation still holds
	// the user's raw request text, so drop it along with the conversation.
	conv.ClearPending()
	e.conversations.Remove(conv.ID)
	if e.metrics != nil {
		e.metrics.Erasures.WithLabelValues("ok").Inc()
	}
	e.countEvent("erased")
	return nil
}

// GrantConsent records (or restores) consent for a conversation.
func (e *Engine) GrantConsent(conversationID string) error {
	conv, err := e.conversations.Get(conversationID)
	if err != nil {
		return err
	}
	e.gate.Grant(memory.Key{TenantID: conv.TenantID, ConversationID: conv.ID})
	return nil
}

// Conversation exposes aggregate state for the read API.
func (e *Engine) Conversation(conversationID string) (*conversation.Conversation, error) {
	return e.conversations.Get(conversationID)
}

// OverrideAudits lists the persisted operator overrides for a conversation.
func (e *Engine) OverrideAudits(ctx context.Context, conversationID string, limit int) ([]memory.OverrideAudit, error) {
	key := memory.Key{TenantID: e.tenantID, ConversationID: conversationID}
	return e.tiers.OverrideAudits(ctx, key, limit)
}

func (e *Engine) countEvent(event string) {
	if e.metrics != nil {
		e.metrics.ConversationEvents.WithLabelValues(event).Inc()
	}
}

func (e *Engine) countConfirmation(outcome string) {
	if outcome == "" {
		return
	}
	if e.metrics != nil {
		e.metrics.ConfirmationEvents.WithLabelValues(outcome).Inc()
	}
}

func recentUserTexts(window []memory.Turn) []string {
	var texts []string
	for i := len(window) - 1; i >= 0 && len(texts) < contextTurns; i-- {
		if window[i].Role == memory.RoleUser {
			texts = append(texts, window[i].Text)
		}
	}
	// reverse into chronological order
	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts
}

func discardAttachments(attachments [][]byte) {
	for _, buf := range attachments {
		for i := range buf {
			buf[i] = 0
		}
	}
}
