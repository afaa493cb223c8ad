package auth

import (
	"context"
	"testing"
	"time"

	"utangku/internal/store/memory"
)

func newTestService() *Service {
	return NewService(memory.New(), Seed{Email: "toko@example.com", Password: "rahasia"}, time.Hour)
}

func TestSignInProvisionsOnFirstUse(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	sess, err := s.SignIn(ctx, "Toko@Example.com", "rahasia")
	if err != nil {
		t.Fatalf("first sign-in: %v", err)
	}
	if sess.Token == "" || sess.UserID == "" {
		t.Fatalf("incomplete session: %+v", sess)
	}

	// Second sign-in hits the stored bcrypt hash, not the seed.
	again, err := s.SignIn(ctx, "toko@example.com", "rahasia")
	if err != nil {
		t.Fatalf("second sign-in: %v", err)
	}
	if again.UserID != sess.UserID {
		t.Fatal("sign-ins resolved to different users")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.SignIn(ctx, "toko@example.com", "salah"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.SignIn(ctx, "lain@example.com", "rahasia"); err != ErrInvalidCredentials {
		t.Fatalf("unknown identity must be rejected, got %v", err)
	}
	if _, err := s.SignIn(ctx, "", ""); err != ErrInvalidCredentials {
		t.Fatalf("empty credentials must be rejected, got %v", err)
	}

	// The bad attempts above must not have provisioned anything usable.
	if _, err := s.Resolve("no-such-token"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestResolveAndSignOut(t *testing.T) {
	s := newTestService()
	sess, err := s.SignIn(context.Background(), "toko@example.com", "rahasia")
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}

	got, err := s.Resolve(sess.Token)
	if err != nil || got.UserID != sess.UserID {
		t.Fatalf("resolve: %v %+v", err, got)
	}

	s.SignOut(sess.Token)
	if _, err := s.Resolve(sess.Token); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after sign-out, got %v", err)
	}
	s.SignOut(sess.Token) // repeat is a no-op
}

func TestSessionExpiry(t *testing.T) {
	s := newTestService()
	sess, err := s.SignIn(context.Background(), "toko@example.com", "rahasia")
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Resolve(sess.Token); err != ErrNoSession {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestSessionEventStream(t *testing.T) {
	s := newTestService()
	events, cancel := s.Subscribe()
	defer cancel()

	sess, err := s.SignIn(context.Background(), "toko@example.com", "rahasia")
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventSignedIn || ev.Session.Token != sess.Token {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no signed-in event")
	}

	s.SignOut(sess.Token)
	select {
	case ev := <-events:
		if ev.Type != EventSignedOut {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no signed-out event")
	}
}
