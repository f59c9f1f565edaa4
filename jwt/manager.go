package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrInvalidConfig is returned by NewManager for unusable settings.
	ErrInvalidConfig = errors.New("jwt: invalid configuration")
	// ErrCannotSign means the manager holds verification keys only.
	ErrCannotSign = errors.New("jwt: no signing key configured")
	// ErrInvalidToken wraps every parse or verification failure.
	ErrInvalidToken = errors.New("jwt: invalid access token")
)

const maxLeeway = 2 * time.Minute

// Config configures token issuance and verification.
//
// VerifyKeys enables key rotation for ed25519: a token must then carry a kid
// present in the map. KeyID is stamped on issued tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock used for iat and exp. Tests only.
	Now func() time.Time
}

// Claims carries the administrator identity. Authorities are the canonical
// ROLE_-prefixed codes held when the token was issued.
type Claims struct {
	Username    string   `json:"user_name"`
	Authorities []string `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// keyring holds keys parsed once at construction.
type keyring struct {
	method jwt.SigningMethod
	sign   any
	verify any
	byKid  map[string]any
}

// Manager issues and verifies administrator access tokens.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string
	kid      string
	now      func() time.Time
	keys     keyring
	parser   *jwt.Parser
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access TTL must be > 0", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("%w: leeway must be within [0, %s]", ErrInvalidConfig, maxLeeway)
	}

	keys, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		ttl:      cfg.AccessTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		kid:      strings.TrimSpace(cfg.KeyID),
		now:      cfg.Now,
		keys:     keys,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.kid != "" && keys.byKid != nil {
		if _, ok := keys.byKid[m.kid]; !ok {
			return nil, fmt.Errorf("%w: key id %q has no verify key", ErrInvalidConfig, m.kid)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func loadKeys(cfg Config) (keyring, error) {
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return keyring{}, fmt.Errorf("%w: hs256 requires a shared secret", ErrInvalidConfig)
		}
		secret := append([]byte(nil), cfg.PrivateKey...)
		return keyring{method: jwt.SigningMethodHS256, sign: secret, verify: secret}, nil

	case MethodEd25519, "":
		k := keyring{method: jwt.SigningMethodEdDSA}
		if len(cfg.PrivateKey) > 0 {
			priv, err := edPrivateKey(cfg.PrivateKey)
			if err != nil {
				return keyring{}, err
			}
			k.sign = priv
			k.verify = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := edPublicKey(cfg.PublicKey)
			if err != nil {
				return keyring{}, err
			}
			k.verify = pub
		}
		if len(cfg.VerifyKeys) > 0 {
			k.byKid = make(map[string]any, len(cfg.VerifyKeys))
			for kid, raw := range cfg.VerifyKeys {
				if strings.TrimSpace(kid) == "" {
					return keyring{}, fmt.Errorf("%w: empty key id", ErrInvalidConfig)
				}
				pub, err := edPublicKey(raw)
				if err != nil {
					return keyring{}, fmt.Errorf("key id %q: %w", kid, err)
				}
				k.byKid[kid] = pub
			}
		}
		if k.verify == nil && k.byKid == nil {
			return keyring{}, fmt.Errorf("%w: ed25519 requires a public key", ErrInvalidConfig)
		}
		return k, nil

	default:
		return keyring{}, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}
}

// CreateAccess signs a short-lived access token for username.
func (m *Manager) CreateAccess(username string, authorities []string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("jwt: username required")
	}
	if m.keys.sign == nil {
		return "", ErrCannotSign
	}

	now := m.now()
	claims := Claims{
		Username:    username,
		Authorities: append([]string(nil), authorities...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	return token.SignedString(m.keys.sign)
}

// ParseAccess verifies raw and returns its claims. Tokens without a
// user_name claim are rejected.
func (m *Manager) ParseAccess(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.verifyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Username) == "" {
		return nil, fmt.Errorf("%w: missing user_name", ErrInvalidToken)
	}
	return claims, nil
}

func (m *Manager) verifyKey(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)

	if m.keys.byKid != nil {
		key, ok := m.keys.byKid[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if m.kid != "" && kid != m.kid {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return m.keys.verify, nil
}

// Both key parsers accept raw key bytes or PEM.

func edPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: ed25519 private key: %v", ErrInvalidConfig, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 private key", ErrInvalidConfig)
	}
	return key, nil
}

func edPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: ed25519 public key: %v", ErrInvalidConfig, err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 public key", ErrInvalidConfig)
	}
	return key, nil
}
