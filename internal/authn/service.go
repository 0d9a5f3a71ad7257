package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeJWT     = "jwt"
	TokenTypeSession = "session"
)

// state is the atomically-swapped key material. Rotation (RotateKey)
// installs a wholly new state: in-flight verifications that already loaded
// the previous state finish against it, so JWKS rotation atomically replaces
// the key set with no grace period for the old kid.
type state struct {
	signingKey *KeyPair
	verifyKeys map[string]*rsa.PublicKey
	hmacSecret []byte
}

// Service issues and verifies the gateway's own bearer tokens. With no RSA
// key pair configured it falls back to a single process-lifetime HMAC
// session token; Verify accepts either form regardless of which one the
// process is currently issuing.
type Service struct {
	st       atomic.Pointer[state]
	lifetime time.Duration
	issuer   string
}

// New constructs a Service. If kp is nil, the service issues/verifies
// HMAC-signed session tokens only; a random secret is generated and lives
// for the process lifetime.
func New(kp *KeyPair, lifetime time.Duration) (*Service, error) {
	s := &Service{lifetime: lifetime, issuer: "hoot-gateway"}

	st := &state{verifyKeys: make(map[string]*rsa.PublicKey)}
	if kp != nil {
		st.signingKey = kp
		st.verifyKeys[kp.KID] = &kp.PrivateKey.PublicKey
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("authn: generate hmac fallback secret: %w", err)
	}
	st.hmacSecret = secret

	s.st.Store(st)
	return s, nil
}

// RotateKey atomically replaces the signing/verification key set with kp.
// Tokens signed under the previous kid stop verifying immediately.
func (s *Service) RotateKey(kp *KeyPair) {
	prev := s.st.Load()
	next := &state{
		signingKey: kp,
		verifyKeys: map[string]*rsa.PublicKey{kp.KID: &kp.PrivateKey.PublicKey},
		hmacSecret: prev.hmacSecret,
	}
	s.st.Store(next)
}

// JWKS returns the current public key set, safe to publish at
// GET /.well-known/jwks.json.
func (s *Service) JWKS() JWKSDocument {
	st := s.st.Load()
	doc := JWKSDocument{Keys: make([]JWK, 0, len(st.verifyKeys))}
	if st.signingKey != nil {
		doc.Keys = append(doc.Keys, publicJWK(st.signingKey))
	}
	return doc
}

// IssueOpts carries the opaque pass-through claims consumed by the external
// LLM proxy.
type IssueOpts struct {
	PortkeyOID       string
	PortkeyWorkspace string
	Scope            string
}

// Issue validates userID against RFC 4122 v4 grammar and signs a token for
// it. Returns the token and its type ("jwt" for RS256, "session" for the
// HMAC fallback).
func (s *Service) Issue(userID string, opts IssueOpts) (token string, tokenType string, err error) {
	id, err := uuid.Parse(userID)
	if err != nil || id.Version() != 4 {
		return "", "", ErrBadUserID
	}

	st := s.st.Load()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
		EmailID:          userID + "@hoot.local",
		PortkeyOID:       opts.PortkeyOID,
		PortkeyWorkspace: opts.PortkeyWorkspace,
		Scope:            opts.Scope,
	}

	if st.signingKey != nil {
		claims.TokenType = TokenTypeJWT
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = st.signingKey.KID
		signed, err := tok.SignedString(st.signingKey.PrivateKey)
		if err != nil {
			return "", "", fmt.Errorf("authn: sign token: %w", err)
		}
		return signed, TokenTypeJWT, nil
	}

	claims.TokenType = TokenTypeSession
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(st.hmacSecret)
	if err != nil {
		return "", "", fmt.Errorf("authn: sign session token: %w", err)
	}
	return signed, TokenTypeSession, nil
}

// Verify parses and validates tokenString, classifying failures as
// ErrTokenMissing (empty input), ErrTokenExpired (valid signature, exp < now),
// or ErrTokenInvalid (anything else).
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	st := s.st.Load()
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			key, ok := st.verifyKeys[kid]
			if !ok {
				return nil, fmt.Errorf("authn: unknown kid %q", kid)
			}
			return key, nil
		case *jwt.SigningMethodHMAC:
			return st.hmacSecret, nil
		default:
			return nil, fmt.Errorf("authn: unexpected signing method %v", t.Header["alg"])
		}
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
