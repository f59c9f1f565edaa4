package password

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"strings"
)

// SchemeOracle is the tag of legacy directory hashes when they are stored tagged.
const SchemeOracle = "oracle"

const (
	oraclePrefix     = "S:"
	oracleDigestHex  = sha1.Size * 2
	oracleSaltBytes  = 10
	oracleEncodedLen = len(oraclePrefix) + oracleDigestHex + oracleSaltBytes*2
)

// OracleSHA1 verifies hashes copied from the legacy directory:
// "S:" followed by the upper-case hex SHA-1 of password||salt and the hex salt.
type OracleSHA1 struct{}

func (OracleSHA1) Hash(password string) (string, error) {
	salt := make([]byte, oracleSaltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return encodeOracle(password, salt), nil
}

func (OracleSHA1) Verify(password, encoded string) (bool, error) {
	if len(encoded) != oracleEncodedLen || !strings.HasPrefix(encoded, oraclePrefix) {
		return false, ErrMalformedHash
	}

	body := encoded[len(oraclePrefix):]
	want, err := hex.DecodeString(body[:oracleDigestHex])
	if err != nil {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(body[oracleDigestHex:])
	if err != nil {
		return false, ErrMalformedHash
	}

	got := oracleDigest(password, salt)
	return subtle.ConstantTimeCompare(got[:], want) == 1, nil
}

func encodeOracle(password string, salt []byte) string {
	digest := oracleDigest(password, salt)
	return oraclePrefix + strings.ToUpper(hex.EncodeToString(digest[:])+hex.EncodeToString(salt))
}

func oracleDigest(password string, salt []byte) [sha1.Size]byte {
	buf := make([]byte, 0, len(password)+len(salt))
	buf = append(buf, password...)
	buf = append(buf, salt...)
	return sha1.Sum(buf)
}
