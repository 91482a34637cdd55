package alert

import (
	"context"
	"testing"
	"time"

	"clickbridge_backend/platform/logger"
)

func TestNotifyDisabledMailerIsNoOp(t *testing.T) {
	var m *Mailer
	if err := m.Notify(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("nil mailer must be a no-op: %v", err)
	}

	m = &Mailer{enabled: false, log: logger.New("development")}
	if err := m.Notify(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("disabled mailer must be a no-op: %v", err)
	}
}

func TestThrottleSuppressesRepeatedSubjects(t *testing.T) {
	current := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := &Mailer{
		lastSent: make(map[string]time.Time),
		now:      func() time.Time { return current },
	}

	if !m.shouldSend("credential failure") {
		t.Fatal("first alert must go through")
	}
	if m.shouldSend("credential failure") {
		t.Fatal("repeat within the window must be throttled")
	}
	if !m.shouldSend("different subject") {
		t.Fatal("throttle is per subject")
	}

	current = current.Add(throttleWindow + time.Minute)
	if !m.shouldSend("credential failure") {
		t.Fatal("alert must resume after the window")
	}
}
