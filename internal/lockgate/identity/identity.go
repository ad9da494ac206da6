// Package identity maps the tokens a lock reports to a known user.
package identity

import (
	"context"
	"strings"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// Strategy looks a token up one way.  A miss is ok=false with a nil error.
type Strategy interface {
	Kind() types.CredentialKind
	Lookup(ctx context.Context, token string) (types.User, bool, error)
}

type FingerprintStrategy struct{ Users store.UserStore }

func (FingerprintStrategy) Kind() types.CredentialKind { return types.CredentialFingerprint }

func (s FingerprintStrategy) Lookup(ctx context.Context, token string) (types.User, bool, error) {
	return s.Users.FindUserByFingerprint(ctx, token)
}

type CardStrategy struct{ Users store.UserStore }

func (CardStrategy) Kind() types.CredentialKind { return types.CredentialCard }

func (s CardStrategy) Lookup(ctx context.Context, token string) (types.User, bool, error) {
	return s.Users.FindUserByCard(ctx, token)
}

// NameStrategy matches the "first last" display name exactly.
type NameStrategy struct{ Users store.UserStore }

func (NameStrategy) Kind() types.CredentialKind { return types.CredentialName }

func (s NameStrategy) Lookup(ctx context.Context, token string) (types.User, bool, error) {
	return s.Users.FindUserByName(ctx, token)
}

// Match is a successful resolution.  Kind is the strategy that matched and
// Token the value that matched it.
type Match struct {
	User  types.User
	Kind  types.CredentialKind
	Token string
}

// Resolver tries its strategies in order; the first hit wins.
type Resolver struct {
	strategies []Strategy
}

// NewResolver returns the standard fingerprint, card, name resolver.
func NewResolver(users store.UserStore) *Resolver {
	return NewResolverWith(
		FingerprintStrategy{Users: users},
		CardStrategy{Users: users},
		NameStrategy{Users: users},
	)
}

func NewResolverWith(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve matches one token against every strategy.  Matching is exact:
// surrounding whitespace is not stripped.  Blank tokens never match.  The
// first infrastructure error aborts the lookup.
func (r *Resolver) Resolve(ctx context.Context, token string) (Match, bool, error) {
	if strings.TrimSpace(token) == "" {
		return Match{}, false, nil
	}
	for _, s := range r.strategies {
		u, ok, err := s.Lookup(ctx, token)
		if err != nil {
			return Match{}, false, err
		}
		if ok {
			return Match{User: u, Kind: s.Kind(), Token: token}, true, nil
		}
	}
	return Match{}, false, nil
}

// ResolveEvent tries the event's tokens in priority order: fingerprint id,
// card number, then the free-text credential token.
func (r *Resolver) ResolveEvent(ctx context.Context, ev types.RawEvent) (Match, bool, error) {
	seen := make(map[string]struct{}, 3)
	for _, tok := range []string{ev.FingerprintID, ev.CardNumber, ev.CredentialToken} {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}

		m, ok, err := r.Resolve(ctx, tok)
		if err != nil || ok {
			return m, ok, err
		}
	}
	return Match{}, false, nil
}
