package auth

import (
	"time"
)

// Refresh windows measured against the refresh token's expiry.
const (
	RefreshBothWindow   = 5 * time.Minute
	RefreshAccessWindow = 30 * time.Minute
)

// Outcome is the result of evaluating a session on /auth/verify.
type Outcome string

const (
	OutcomeRefreshedBoth   Outcome = "refreshed-both"
	OutcomeRefreshedAccess Outcome = "refreshed-access"
	OutcomeAuthorized      Outcome = "authorized"
)

// Message is the human readable status returned to clients.
func (o Outcome) Message() string {
	switch o {
	case OutcomeRefreshedBoth:
		return "Tokens refreshed!!!"
	case OutcomeRefreshedAccess:
		return "Access refreshed!!!"
	default:
		return "User authorized!!!"
	}
}

// Decision carries the outcome and any tokens minted for it.
// Empty strings mean the corresponding cookie is left untouched.
type Decision struct {
	Outcome      Outcome
	AccessToken  string
	RefreshToken string
}

// Refreshed reports whether any token was reissued.
func (d Decision) Refreshed() bool {
	return d.Outcome != OutcomeAuthorized
}

// SessionPolicy decides which tokens to reissue for a verified refresh token.
type SessionPolicy struct {
	codec *Codec
	now   func() time.Time
}

// NewSessionPolicy binds the policy to a codec. A nil clock means time.Now.
func NewSessionPolicy(codec *Codec, now func() time.Time) *SessionPolicy {
	if now == nil {
		now = time.Now
	}
	return &SessionPolicy{codec: codec, now: now}
}

// ExpiresWithin reports whether now+window reaches the token's expiry.
func ExpiresWithin(p Payload, now time.Time, window time.Duration) bool {
	return !now.Add(window).Before(p.ExpiresAt)
}

// Parse verifies a raw refresh cookie value and checks its kind.
func (s *SessionPolicy) Parse(raw string) (Payload, error) {
	p, err := s.codec.Verify(raw)
	if err != nil {
		return Payload{}, err
	}
	if p.Kind != KindRefresh {
		return Payload{}, ErrInvalidToken
	}
	return p, nil
}

// Evaluate applies the refresh windows to a verified refresh token payload.
func (s *SessionPolicy) Evaluate(refresh Payload) (Decision, error) {
	now := s.now()
	identity := Payload{Subject: refresh.Subject, Role: refresh.Role}

	switch {
	case ExpiresWithin(refresh, now, RefreshBothWindow):
		pair, err := s.codec.IssuePair(identity)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Outcome:      OutcomeRefreshedBoth,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}, nil
	case ExpiresWithin(refresh, now, RefreshAccessWindow):
		access, err := s.codec.Issue(identity, KindAccess, AccessTokenTTL)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Outcome: OutcomeRefreshedAccess, AccessToken: access}, nil
	default:
		return Decision{Outcome: OutcomeAuthorized}, nil
	}
}
