package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DamienDrash/arni-sub002/internal/ghost"
	"github.com/DamienDrash/arni-sub002/internal/protocol"
)

// operatorConn is one connected operator console. Writes go through a
// buffered channel so the websocket write side stays single-threaded; a
// saturated console loses events rather than stalling the engine.
type operatorConn struct {
	outbound chan any

	mu       sync.Mutex
	releases map[string]func()
}

func (c *operatorConn) send(msg any) bool {
	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

func (c *operatorConn) observe(conversationID string, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.releases[conversationID]; ok {
		prev()
	}
	c.releases[conversationID] = release
}

func (c *operatorConn) releaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, release := range c.releases {
		release()
	}
	c.releases = make(map[string]func())
}

// operatorHub routes draft previews to the consoles observing each
// conversation.
type operatorHub struct {
	mu       sync.Mutex
	watchers map[string]map[*operatorConn]struct{}
}

func newOperatorHub() *operatorHub {
	return &operatorHub{watchers: make(map[string]map[*operatorConn]struct{})}
}

func (h *operatorHub) add(conversationID string, c *operatorConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watchers[conversationID] == nil {
		h.watchers[conversationID] = make(map[*operatorConn]struct{})
	}
	h.watchers[conversationID][c] = struct{}{}
}

func (h *operatorHub) remove(c *operatorConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.watchers {
		delete(set, c)
		if len(set) == 0 {
			delete(h.watchers, id)
		}
	}
}

func (h *operatorHub) pushPreview(d ghost.Draft) {
	preview := protocol.DraftPreview{
		Type:           protocol.TypeDraftPreview,
		ConversationID: d.ConversationID,
		DraftID:        d.ID,
		UserText:       d.UserText,
		DraftText:      d.Text,
		Intent:         d.Intent,
		ExpiresAt:      d.ExpiresAt,
	}
	h.mu.Lock()
	conns := make([]*operatorConn, 0, len(h.watchers[d.ConversationID]))
	for c := range h.watchers[d.ConversationID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.send(preview)
	}
}

func (s *Server) handleOperatorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	oc := &operatorConn{
		outbound: make(chan any, 256),
		releases: make(map[string]func()),
	}
	defer func() {
		s.hub.remove(oc)
		oc.releaseAll()
	}()

	ctx := r.Context()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-oc.outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseOperatorMessage(data)
		if err != nil {
			oc.send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_operator_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.OperatorObserve:
			release := s.supervisor.Observe(msg.ConversationID)
			oc.observe(msg.ConversationID, release)
			s.hub.add(msg.ConversationID, oc)
			oc.send(protocol.SystemEvent{
				Type:           protocol.TypeSystemEvent,
				ConversationID: msg.ConversationID,
				Code:           "observing",
			})
		case protocol.OperatorOverride:
			if err := s.supervisor.Override(msg.DraftID, msg.OperatorID, msg.Reason, msg.Text); err != nil {
				oc.send(protocol.ErrorEvent{
					Type:           protocol.TypeErrorEvent,
					ConversationID: msg.ConversationID,
					Code:           "draft_not_found",
					Source:         "ghost",
					Retryable:      false,
					Detail:         err.Error(),
				})
			}
		case protocol.OperatorApprove:
			if err := s.supervisor.Approve(msg.DraftID, msg.OperatorID); err != nil {
				oc.send(protocol.ErrorEvent{
					Type:           protocol.TypeErrorEvent,
					ConversationID: msg.ConversationID,
					Code:           "draft_not_found",
					Source:         "ghost",
					Retryable:      false,
					Detail:         err.Error(),
				})
			}
		}
	}
}
