package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/identity"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store/memory"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

func directory() *memory.Directory {
	d := memory.NewDirectory()
	d.AddUser(types.User{ID: 1, FirstName: "Ana", LastName: "Pérez", FingerprintID: "12345", AccessLevel: 3})
	d.AddUser(types.User{ID: 2, FirstName: "Luis", LastName: "Gómez", CardID: "99", AccessLevel: 1})
	// Card equal to user 1's fingerprint: fingerprint must win.
	d.AddUser(types.User{ID: 3, FirstName: "Eva", LastName: "Ruiz", CardID: "12345"})
	return d
}

// ═══════════════════════════════════════════════════════════════════════════
// Strategies
// ═══════════════════════════════════════════════════════════════════════════

func TestStrategies_Independently(t *testing.T) {
	d := directory()
	ctx := context.Background()

	cases := []struct {
		s     identity.Strategy
		token string
		want  int64
	}{
		{identity.FingerprintStrategy{Users: d}, "12345", 1},
		{identity.CardStrategy{Users: d}, "99", 2},
		{identity.CardStrategy{Users: d}, "12345", 3},
		{identity.NameStrategy{Users: d}, "Luis Gómez", 2},
	}
	for _, c := range cases {
		u, ok, err := c.s.Lookup(ctx, c.token)
		if err != nil || !ok {
			t.Fatalf("%s(%q): ok=%v err=%v", c.s.Kind(), c.token, ok, err)
		}
		if u.ID != c.want {
			t.Errorf("%s(%q) = user %d, want %d", c.s.Kind(), c.token, u.ID, c.want)
		}
	}

	if _, ok, _ := (identity.NameStrategy{Users: d}).Lookup(ctx, "luis gómez"); ok {
		t.Error("name matching must be exact")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Resolver
// ═══════════════════════════════════════════════════════════════════════════

func TestResolve_OrderAndKind(t *testing.T) {
	r := identity.NewResolver(directory())
	ctx := context.Background()

	m, ok, err := r.Resolve(ctx, "12345")
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if m.User.ID != 1 || m.Kind != types.CredentialFingerprint {
		t.Errorf("got user %d via %s, want 1 via fingerprint", m.User.ID, m.Kind)
	}

	m, ok, _ = r.Resolve(ctx, "Ana Pérez")
	if !ok || m.User.ID != 1 || m.Kind != types.CredentialName {
		t.Errorf("name: %+v ok=%v", m, ok)
	}
}

func TestResolve_NotFoundIsValue(t *testing.T) {
	r := identity.NewResolver(directory())
	for _, tok := range []string{"nope", "", "   "} {
		if _, ok, err := r.Resolve(context.Background(), tok); ok || err != nil {
			t.Errorf("Resolve(%q): ok=%v err=%v", tok, ok, err)
		}
	}
}

func TestResolve_ExactMatchOnly(t *testing.T) {
	r := identity.NewResolver(directory())
	ctx := context.Background()

	for _, tok := range []string{" 12345", "12345 ", "\t99", "Ana Pérez ", "ana pérez"} {
		if m, ok, err := r.Resolve(ctx, tok); ok || err != nil {
			t.Errorf("Resolve(%q) = %+v ok=%v err=%v", tok, m, ok, err)
		}
	}
	if _, ok, _ := r.ResolveEvent(ctx, types.RawEvent{LockID: "L1", FingerprintID: " 12345"}); ok {
		t.Error("padded fingerprint must not resolve")
	}
}

func TestResolveEvent_TokenPriority(t *testing.T) {
	r := identity.NewResolver(directory())
	ctx := context.Background()

	// Fingerprint token beats card number beats free text.
	m, ok, err := r.ResolveEvent(ctx, types.RawEvent{
		LockID:          "L1",
		FingerprintID:   "12345",
		CardNumber:      "99",
		CredentialToken: "Luis Gómez",
	})
	if err != nil || !ok || m.User.ID != 1 {
		t.Fatalf("got %+v ok=%v err=%v", m, ok, err)
	}

	// Unknown fingerprint falls through to the card.
	m, ok, _ = r.ResolveEvent(ctx, types.RawEvent{LockID: "L1", FingerprintID: "000", CardNumber: "99"})
	if !ok || m.User.ID != 2 || m.Token != "99" {
		t.Errorf("fallthrough: %+v ok=%v", m, ok)
	}

	if _, ok, _ := r.ResolveEvent(ctx, types.RawEvent{LockID: "L1"}); ok {
		t.Error("event without tokens must not resolve")
	}
}

type failingStrategy struct{ err error }

func (failingStrategy) Kind() types.CredentialKind { return types.CredentialUnknown }
func (f failingStrategy) Lookup(context.Context, string) (types.User, bool, error) {
	return types.User{}, false, f.err
}

func TestResolve_PropagatesInfrastructureError(t *testing.T) {
	boom := errors.New("db down")
	r := identity.NewResolverWith(failingStrategy{err: boom}, identity.NameStrategy{Users: directory()})

	_, ok, err := r.Resolve(context.Background(), "Ana Pérez")
	if !errors.Is(err, boom) || ok {
		t.Fatalf("expected db down, got ok=%v err=%v", ok, err)
	}
}
