// Package auth verifies bearer tokens and extracts the caller's identity.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"logistrans/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates JWTs and extracts subject/role claims.
// Supports modes: dev (no verify), hmac (HS256), jwks (RS256 from JWKS URL).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	JWKSURL    string
	RoleClaim  string
	NameClaim  string
	http       *http.Client
	now        func() time.Time
	mu         sync.RWMutex
	jwks       jwks
	lastFetch  time.Time
	cacheTTL   time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Principal is an authenticated caller. Subject is the user id.
type Principal struct {
	Subject  string
	Username string
	Role     string // admin, dispatcher, driver
}

func (p Principal) IsAdmin() bool  { return p.Role == "admin" }
func (p Principal) IsDriver() bool { return p.Role == "driver" }

func NewVerifier(c config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(c.HMACSecret),
		JWKSURL:    c.JWKSURL,
		RoleClaim:  or(c.RoleClaim, "role"),
		NameClaim:  or(c.NameClaim, "username"),
		http:       &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
		cacheTTL:   10 * time.Minute,
	}
}

func or(v, d string) string {
	if v != "" {
		return v
	}
	return d
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: subject:role[:username]
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			p := Principal{Subject: parts[0], Role: strings.ToLower(parts[1])}
			if len(parts) >= 3 {
				p.Username = parts[2]
			}
			return p, nil
		}
		return Principal{}, fmt.Errorf("%w: expected subject:role", ErrInvalidToken)
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: not a JWT", ErrInvalidToken)
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	alg, _ := hdr["alg"].(string)
	kid, _ := hdr["kid"].(string)
	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if alg != "HS256" {
			return Principal{}, fmt.Errorf("%w: unsupported alg %q for hmac", ErrInvalidToken, alg)
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
	case "jwks":
		if alg != "RS256" {
			return Principal{}, fmt.Errorf("%w: unsupported alg %q for jwks", ErrInvalidToken, alg)
		}
		pub, err := v.getRSAPublicKey(kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
	}

	if exp, ok := claims["exp"].(float64); ok && v.now().After(time.Unix(int64(exp), 0)) {
		return Principal{}, ErrExpired
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims[v.RoleClaim].(string)
	name, _ := claims[v.NameClaim].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	if role == "" {
		role = "user"
	}
	return Principal{Subject: sub, Username: name, Role: strings.ToLower(role)}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

// getRSAPublicKey returns the key for kid, refreshing the JWKS when stale.
func (v *Verifier) getRSAPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			e := new(big.Int).SetBytes(eBytes)
			if !e.IsInt64() {
				return nil, errors.New("jwk exponent too large")
			}
			return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %q not found in JWKS", ErrInvalidToken, kid)
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	req, _ := http.NewRequest(http.MethodGet, v.JWKSURL, nil)
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return err
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
