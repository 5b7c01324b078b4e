// Package servicetoken signs short-lived JWTs that authenticate this service
// to the summarization webhook.
package servicetoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is the default lifetime for outbound service tokens.
	DefaultTokenTTL = 60 * time.Second
	// DefaultKeyID is the kid header used when none is configured.
	DefaultKeyID = "summary-active"
)

// SignerOptions configures signing. PrivateKeyPath selects RS256;
// otherwise SharedSecret selects HS256.
type SignerOptions struct {
	PrivateKeyPath string
	SharedSecret   string
	KeyID          string
	Issuer         string
	TTL            time.Duration
}

// Signer issues short-lived service JWTs.
type Signer struct {
	issuer string
	ttl    time.Duration
	kid    string
	method jwt.SigningMethod
	key    any
}

// NewSigner creates a signer from opts.
func NewSigner(opts SignerOptions) (*Signer, error) {
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	kid := strings.TrimSpace(opts.KeyID)
	if kid == "" {
		kid = DefaultKeyID
	}
	s := &Signer{issuer: issuer, ttl: ttl, kid: kid}
	switch {
	case strings.TrimSpace(opts.PrivateKeyPath) != "":
		key, err := loadRSAPrivateKeyFromPEMFile(strings.TrimSpace(opts.PrivateKeyPath))
		if err != nil {
			return nil, fmt.Errorf("load service jwt private key: %w", err)
		}
		s.method, s.key = jwt.SigningMethodRS256, key
	case opts.SharedSecret != "":
		if len(opts.SharedSecret) < 32 {
			return nil, errors.New("service token shared secret must be at least 32 bytes")
		}
		s.method, s.key = jwt.SigningMethodHS256, []byte(opts.SharedSecret)
	default:
		return nil, errors.New("service token private key path or shared secret is required")
	}
	return s, nil
}

// Sign issues a token for the given audience.
func (s *Signer) Sign(audience string) (string, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", errors.New("service token audience is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        randomHexID(12),
	}
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}
