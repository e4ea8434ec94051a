package authkit_test

import (
	"context"
	"testing"

	authkit "github.com/tradeyard/authkit"
)

func TestMetricsCountEvents(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	register(t, env, "ada@example.com")
	if _, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong password!"); err == nil {
		t.Fatal("expected login failure")
	}

	snap := env.engine.MetricsSnapshot()
	if got := snap.Counters[authkit.MetricAccountCreated]; got != 1 {
		t.Fatalf("accounts created: got %d, want 1", got)
	}
	if got := snap.Counters[authkit.MetricLoginSuccess]; got != 1 {
		t.Fatalf("login successes: got %d, want 1", got)
	}
	if got := snap.Counters[authkit.MetricLoginFailure]; got != 1 {
		t.Fatalf("login failures: got %d, want 1", got)
	}
	// Registration and login both open sessions.
	if got := snap.Counters[authkit.MetricSessionCreated]; got != 2 {
		t.Fatalf("sessions created: got %d, want 2", got)
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEngine(t, func(cfg *authkit.Config) {
		cfg.Metrics.Enabled = false
	})

	register(t, env, "ada@example.com")

	snap := env.engine.MetricsSnapshot()
	if got := snap.Counters[authkit.MetricAccountCreated]; got != 0 {
		t.Fatalf("disabled metrics must stay zero, got %d", got)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := authkit.WithClientIP(context.Background(), "203.0.113.7")

	reg, err := env.engine.Register(ctx, authkit.RegisterInput{
		Email:    "ada@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong password!"); err == nil {
		t.Fatal("expected login failure")
	}

	// Close drains the dispatcher into the sink.
	env.engine.Close()

	byType := map[string][]authkit.AuditEvent{}
	for {
		select {
		case ev := <-env.sink.Events():
			byType[ev.EventType] = append(byType[ev.EventType], ev)
			continue
		default:
		}
		break
	}

	regs := byType["account.register"]
	if len(regs) != 1 || !regs[0].Success || regs[0].AccountID != reg.AccountID {
		t.Fatalf("unexpected register events %+v", regs)
	}
	if regs[0].IP != "203.0.113.7" {
		t.Fatalf("events must carry the client IP, got %q", regs[0].IP)
	}

	logins := byType["login"]
	if len(logins) != 1 || logins[0].Success {
		t.Fatalf("unexpected login events %+v", logins)
	}
	if logins[0].Error == "" {
		t.Fatal("failed login event must carry the error")
	}

	if dropped := env.engine.AuditDropped(); dropped != 0 {
		t.Fatalf("no events should drop, got %d", dropped)
	}
}

func TestAuditDisabled(t *testing.T) {
	env := newTestEngine(t, func(cfg *authkit.Config) {
		cfg.Audit.Enabled = false
	})

	register(t, env, "ada@example.com")
	env.engine.Close()

	select {
	case ev := <-env.sink.Events():
		t.Fatalf("disabled audit must emit nothing, got %+v", ev)
	default:
	}
}
