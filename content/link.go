package content

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultLinkTTL is how long a minted artifact link stays valid.
const DefaultLinkTTL = 72 * time.Hour

// Link errors.
var (
	ErrSecretTooShort = errors.New("link signing secret must be at least 32 bytes")
	ErrLinkInvalid    = errors.New("link token is invalid")
	ErrLinkExpired    = errors.New("link token is expired")
)

// LinkConfig holds configuration for signed artifact links.
type LinkConfig struct {
	// Secret is the HMAC signing key (must be at least 32 bytes).
	Secret []byte

	// BaseURL is the externally reachable address the review server
	// serves artifacts from, e.g. https://docflow.example.com.
	BaseURL string

	// TTL is the link lifetime. Defaults to DefaultLinkTTL if zero.
	TTL time.Duration
}

func (c LinkConfig) ttl() time.Duration {
	if c.TTL == 0 {
		return DefaultLinkTTL
	}
	return c.TTL
}

// linkClaims binds a token to one artifact.
type linkClaims struct {
	jwt.RegisteredClaims
}

// SignArtifactLink mints an expiring URL for the review artifact
// identified by the version-pair key.
func SignArtifactLink(cfg LinkConfig, artifactKey string) (string, error) {
	if len(cfg.Secret) < 32 {
		return "", ErrSecretTooShort
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	claims := linkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   artifactKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
			ID:        tokenID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}

	return fmt.Sprintf("%s/artifacts?token=%s", cfg.BaseURL, url.QueryEscape(token)), nil
}

// VerifyArtifactLink validates a link token and returns the artifact
// key it grants access to.
func VerifyArtifactLink(cfg LinkConfig, tokenString string) (string, error) {
	if len(cfg.Secret) < 32 {
		return "", ErrSecretTooShort
	}

	claims := &linkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrLinkExpired
		}
		return "", fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrLinkInvalid
	}
	return claims.Subject, nil
}
