package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL   = 2 * time.Hour
	defaultRememberTTL = 7 * 24 * time.Hour
)

// Claims is the signed claims bundle carried by the remember-me cookie.
// MemberId and RememberMe are string-encoded for wire compatibility.
type Claims struct {
	Username   string `json:"Username"`
	Role       string `json:"Role"`
	MemberID   string `json:"MemberId"`
	RememberMe string `json:"RememberMe"`
	jwt.RegisteredClaims
}

// MemberIDValue returns the numeric member id, or zero when the claim is
// missing or unparseable.
func (c *Claims) MemberIDValue() int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(c.MemberID), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// RememberMeValue reports whether the token was issued with remember-me.
func (c *Claims) RememberMeValue() bool {
	return strings.EqualFold(strings.TrimSpace(c.RememberMe), "true")
}

// TokenService issues and validates HS256-signed identity assertions usable
// across stateless requests.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string

	accessTTL   time.Duration
	rememberTTL time.Duration

	now func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the normal token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRememberTTL overrides the remember-me token lifetime.
func WithRememberTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.rememberTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. Secret, issuer and audience are
// required; lifetimes default to 2h normal and 7d remember-me.
func NewTokenService(secret, issuer, audience string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" || audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	svc := &TokenService{
		secret:      []byte(secret),
		issuer:      issuer,
		audience:    audience,
		accessTTL:   defaultAccessTTL,
		rememberTTL: defaultRememberTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue signs a token for the given identity. Pure computation; no side
// effects beyond reading the clock.
func (s *TokenService) Issue(username, role string, userID int64, rememberMe bool) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}
	ttl := s.accessTTL
	if rememberMe {
		ttl = s.rememberTTL
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Username:   username,
		Role:       strings.TrimSpace(role),
		MemberID:   strconv.FormatInt(userID, 10),
		RememberMe: strconv.FormatBool(rememberMe),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies signature, issuer, audience and expiry with zero leeway.
// Every failure class maps to ErrInvalidToken; it never panics or surfaces a
// transport error on the authorization path.
func (s *TokenService) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
