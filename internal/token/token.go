// Package token issues and verifies the signed bearer credentials that carry
// an actor identity, and optionally the impersonator who assumed it.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired indicates the credential is past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid indicates a malformed or badly signed credential.
	ErrInvalid = errors.New("token: invalid")
)

// Claims is the only claims shape accepted by this service. ImpersonatorID is
// present only on access tokens minted by an impersonation session.
type Claims struct {
	jwt.RegisteredClaims

	Kind           Kind  `json:"typ"`
	ImpersonatorID int64 `json:"imp,omitempty"`
}

// Identity is the verified payload handed to the authentication guard.
type Identity struct {
	SubjectID      int64
	ImpersonatorID int64
}

// Pair bundles the two credentials returned on login and refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Manager signs and verifies credentials with a server-held HMAC secret.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager constructs a Manager. The secret must not be empty.
func NewManager(secret, issuer string, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token: secret required")
	}
	return &Manager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// IssuePair mints a normal access/refresh credential pair for the actor.
func (m *Manager) IssuePair(now time.Time, actorID int64) (Pair, error) {
	return m.issuePair(now, actorID, 0)
}

// IssueImpersonationPair mints a pair whose subject is the target actor while
// recording the impersonator for later reversal and audit.
func (m *Manager) IssueImpersonationPair(now time.Time, targetID, impersonatorID int64) (Pair, error) {
	return m.issuePair(now, targetID, impersonatorID)
}

func (m *Manager) issuePair(now time.Time, subjectID, impersonatorID int64) (Pair, error) {
	access, err := m.issue(now, KindAccess, subjectID, impersonatorID, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	// Refresh tokens never carry the impersonator; leaving impersonation is
	// explicit, not something a refresh should silently extend.
	refresh, err := m.issue(now, KindRefresh, subjectID, 0, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) issue(now time.Time, kind Kind, subjectID, impersonatorID int64, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind:           kind,
		ImpersonatorID: impersonatorID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates signature, expiry and kind, returning the identity carried
// by the credential.
func (m *Manager) Verify(raw string, expected Kind, now time.Time) (Identity, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return Identity{}, fmt.Errorf("%w: issuer mismatch", ErrInvalid)
	}
	if claims.Kind != expected {
		return Identity{}, fmt.Errorf("%w: kind mismatch", ErrInvalid)
	}
	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subjectID <= 0 {
		return Identity{}, fmt.Errorf("%w: subject", ErrInvalid)
	}
	return Identity{SubjectID: subjectID, ImpersonatorID: claims.ImpersonatorID}, nil
}

// AccessTTL exposes the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}
