package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrScope reports a valid token that does not grant the requested operation.
	ErrScope = errors.New("token scope does not permit operation")
)

const (
	// ScopeExport grants access to replay bundle exports.
	ScopeExport = "replay:export"
	// ScopeUpload grants access to storing new recordings.
	ScopeUpload = "replay:upload"
)

const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

// TokenClaims is the payload of an admin token.
type TokenClaims struct {
	Subject   string    `json:"sub"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"-"`
	IssuedAt  time.Time `json:"-"`
}

// Allows reports whether the claims grant scope. An empty scope grants everything.
func (c *TokenClaims) Allows(scope string) bool {
	if c == nil {
		return false
	}
	if c.Scope == "" {
		return true
	}
	for _, granted := range strings.Fields(c.Scope) {
		if granted == scope {
			return true
		}
	}
	return false
}

type wireClaims struct {
	Subject string `json:"sub"`
	Scope   string `json:"scope,omitempty"`
	Expires int64  `json:"exp"`
	Issued  int64  `json:"iat"`
}

// Signer issues and verifies compact HS256 tokens for the replay admin surface.
type Signer struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewSigner constructs a signer for the shared secret. leeway tolerates clock skew on expiry.
func NewSigner(secret string, leeway time.Duration) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Signer{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the signer clock.
func (s *Signer) WithClock(clock func() time.Time) *Signer {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue mints a token for subject valid for ttl.
func (s *Signer) Issue(subject, scope string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject must not be empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()
	payload, err := json.Marshal(wireClaims{
		Subject: subject,
		Scope:   strings.TrimSpace(scope),
		Expires: now.Add(ttl).Unix(),
		Issued:  now.Unix(),
	})
	if err != nil {
		return "", err
	}
	signingInput := encodeSegment([]byte(tokenHeader)) + "." + encodeSegment(payload)
	return signingInput + "." + encodeSegment(s.sign([]byte(signingInput))), nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (s *Signer) Verify(token string) (*TokenClaims, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, errors.New("signer not initialised")
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	//1.- Reject anything other than HS256 before touching the signature.
	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	signature, err := decodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signature, s.sign([]byte(parts[0]+"."+parts[1]))) {
		return nil, ErrInvalidToken
	}

	//2.- Only signed payloads are decoded.
	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload wireClaims
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(s.leeway).Before(s.now()) {
		return nil, ErrExpiredToken
	}
	return &TokenClaims{
		Subject:   payload.Subject,
		Scope:     payload.Scope,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
	}, nil
}

// Authorize verifies token and requires it to grant scope.
func (s *Signer) Authorize(token, scope string) (*TokenClaims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	if !claims.Allows(scope) {
		return claims, ErrScope
	}
	return claims, nil
}

func (s *Signer) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}
