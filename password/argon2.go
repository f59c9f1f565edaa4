package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SchemeArgon2 is the tag of argon2id hashes.
const SchemeArgon2 = "argon2id"

// Lower bounds accepted both for new hashes and for stored ones.
const (
	minMemoryKB uint32 = 8 * 1024
	minSaltLen         = 16
	minKeyLen   uint32 = 16
)

var b64 = base64.RawStdEncoding

// Argon2Config holds the argon2id cost parameters used for new hashes.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < minSaltLen:
		return fmt.Errorf("argon2 salt length must be >= %d", minSaltLen)
	case c.KeyLength < minKeyLen:
		return fmt.Errorf("argon2 key length must be >= %d", minKeyLen)
	}
	return nil
}

// Argon2 is a [Scheme] producing PHC strings:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 validates cfg against the minimum cost parameters.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// phc is one decoded argon2id hash string.
type phc struct {
	memory uint32
	passes uint32
	lanes  uint8
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		SchemeArgon2, argon2.Version, p.memory, p.passes, p.lanes,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.passes, p.memory, p.lanes, uint32(len(p.key)))
}

func (a *Argon2) Hash(password string) (string, error) {
	p := phc{
		memory: a.cfg.Memory,
		passes: a.cfg.Time,
		lanes:  a.cfg.Parallelism,
		salt:   make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = argon2.IDKey([]byte(password), p.salt, p.passes, p.memory, p.lanes, a.cfg.KeyLength)
	return p.String(), nil
}

func (a *Argon2) Verify(password, encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

func decodePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, errors.New("expected 5 $-separated fields")
	}
	if fields[1] != SchemeArgon2 {
		return phc{}, fmt.Errorf("unsupported variant %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return phc{}, errors.New("invalid version field")
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("unsupported version %d", version)
	}

	var p phc
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.passes, &p.lanes); err != nil {
		return phc{}, errors.New("invalid parameter field")
	}
	if p.memory < minMemoryKB || p.passes < 1 || p.lanes < 1 {
		return phc{}, errors.New("parameters below minimum")
	}

	// Padded base64 from older encoders is accepted.
	var err error
	if p.salt, err = b64.DecodeString(strings.TrimRight(fields[4], "=")); err != nil || len(p.salt) < minSaltLen {
		return phc{}, errors.New("invalid salt")
	}
	if p.key, err = b64.DecodeString(strings.TrimRight(fields[5], "=")); err != nil || len(p.key) == 0 {
		return phc{}, errors.New("invalid key")
	}
	return p, nil
}
