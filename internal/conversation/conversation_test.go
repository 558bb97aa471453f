package conversation

import (
	"testing"
	"time"
)

func newAwaiting(ttl time.Duration) (*Conversation, PendingConfirmation) {
	c := &Conversation{ID: "c1", TenantID: "t1", Status: StatusActive}
	now := time.Now().UTC()
	p := c.SetPending(PendingConfirmation{
		ActionType: "cancel_membership",
		Prompt:     "Soll ich wirklich kündigen?",
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	})
	return c, p
}

func TestConfirmPendingHappyPath(t *testing.T) {
	c, p := newAwaiting(10 * time.Minute)

	got, ok := c.ConfirmPending(time.Now().UTC())
	if !ok {
		t.Fatalf("ConfirmPending() ok = false, want true")
	}
	if got.ID != p.ID || got.State != ConfirmConfirmed {
		t.Fatalf("confirmation = %+v, want confirmed %s", got, p.ID)
	}

	// A racing duplicate turn must not confirm a second time.
	if _, ok := c.ConfirmPending(time.Now().UTC()); ok {
		t.Fatalf("duplicate ConfirmPending() succeeded")
	}
}

func TestConfirmPendingExpired(t *testing.T) {
	c, _ := newAwaiting(-time.Minute)

	if _, ok := c.ConfirmPending(time.Now().UTC()); ok {
		t.Fatalf("ConfirmPending() on expired slot succeeded")
	}
	if c.Pending() != nil {
		t.Fatalf("expired slot should be dropped")
	}
}

func TestCancelPendingAtomicallyRemovesSlot(t *testing.T) {
	c, _ := newAwaiting(10 * time.Minute)

	if !c.CancelPending() {
		t.Fatalf("CancelPending() = false, want true")
	}
	if c.Pending() != nil {
		t.Fatalf("cancelled slot should be removed")
	}
	if _, ok := c.ConfirmPending(time.Now().UTC()); ok {
		t.Fatalf("ConfirmPending() after cancel succeeded")
	}
}

func TestRevertPendingRestoresAwaiting(t *testing.T) {
	c, _ := newAwaiting(10 * time.Minute)

	got, ok := c.ConfirmPending(time.Now().UTC())
	if !ok {
		t.Fatalf("ConfirmPending() failed")
	}

	c.RevertPending(got)
	p := c.Pending()
	if p == nil || p.State != ConfirmAwaiting {
		t.Fatalf("pending after revert = %+v, want awaiting", p)
	}
	if p.ExpiresAt != got.ExpiresAt {
		t.Fatalf("revert must keep the original expiry")
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(time.Minute)
	c, created := m.GetOrCreate("c1", "t1", "u1", "whatsapp")
	if !created {
		t.Fatalf("created = false on first message")
	}
	if c.Status != StatusActive {
		t.Fatalf("status = %q, want active", c.Status)
	}

	again, created := m.GetOrCreate("c1", "t1", "u1", "whatsapp")
	if created {
		t.Fatalf("created = true on second message")
	}
	if again != c {
		t.Fatalf("GetOrCreate returned a different aggregate")
	}

	m.Remove("c1")
	if _, err := m.Get("c1"); err != ErrNotFound {
		t.Fatalf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}
