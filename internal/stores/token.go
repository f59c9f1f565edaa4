package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
)

var (
	ErrTokenNotFound         = errors.New("token record not found")
	ErrTokenRedisUnavailable = errors.New("token redis unavailable")
)

// TokenRecord is the persisted state of a single-use reset or verify token.
type TokenRecord struct {
	Type      string
	Username  string
	ExpiresAt int64
}

// Expired reports whether the record is past its expiry at now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// TokenStore keeps tokens in Redis under a hash of their value. Keys outlive
// the token expiry by Retention so an expired token is reported as expired
// rather than unknown.
type TokenStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *TokenStore {
	if prefix == "" {
		prefix = "atk"
	}
	if retention < 0 {
		retention = 0
	}
	return &TokenStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *TokenStore) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

func (s *TokenStore) Save(ctx context.Context, tokenHash string, record *TokenRecord) error {
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.redis.Set(ctx, s.key(tokenHash), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

// Get returns the record without consuming it. Expired records are returned
// as-is; the caller decides how to report them.
func (s *TokenStore) Get(ctx context.Context, tokenHash string) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return decodeTokenRecord(data)
}

// Consume atomically reads and deletes the record. Only one concurrent
// caller observes the record; the rest get ErrTokenNotFound.
func (s *TokenStore) Consume(ctx context.Context, tokenHash string) (*TokenRecord, error) {
	const maxRetries = 4
	key := s.key(tokenHash)

	for i := 0; i < maxRetries; i++ {
		var consumed *TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrTokenNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}

		return consumed, nil
	}

	return nil, ErrTokenNotFound
}

func (s *TokenStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.redis.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}
	return nil
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	for _, field := range []string{record.Type, record.Username} {
		if len(field) > 65535 {
			return nil, errors.New("token record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	record := &TokenRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	fields := [2]string{}
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}
	record.Type, record.Username = fields[0], fields[1]

	return record, nil
}
