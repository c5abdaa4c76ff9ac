package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Payload is the identity carried by a session token.
type Payload struct {
	Subject string
	Role    Role
	Kind    Kind
	// ExpiresAt is filled by Verify; Issue computes it from the ttl.
	ExpiresAt time.Time
}

// Claims is the JWT body: {sub, role, exp, type}.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair holds both session tokens minted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Codec signs and verifies session tokens with a shared HS256 secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecClock overrides the time source used for exp.
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec returns a codec for the given secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token of the given kind that expires ttl from now.
func (c *Codec) Issue(p Payload, kind Kind, ttl time.Duration) (string, error) {
	if strings.TrimSpace(p.Subject) == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("%w: unknown token kind %q", ErrInvalidInput, kind)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	claims := Claims{
		Role: string(p.Role),
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// IssuePair mints a fresh access and refresh token for the same identity.
func (c *Codec) IssuePair(p Payload) (TokenPair, error) {
	access, err := c.Issue(p, KindAccess, AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.Issue(p, KindRefresh, RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks the signature and decodes the payload. Expiry is reported
// through Payload.ExpiresAt and is not enforced here.
func (c *Codec) Verify(token string) (Payload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Payload{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return Payload{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" || claims.ExpiresAt == nil {
		return Payload{}, ErrInvalidToken
	}
	return Payload{
		Subject:   claims.Subject,
		Role:      Role(claims.Role),
		Kind:      Kind(claims.Type),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
