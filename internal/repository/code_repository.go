package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quickbites/identity-service/internal/domain"
)

var (
	// ErrCodePending is returned when the principal already has an outstanding code for the same purpose.
	ErrCodePending = errors.New("one-time code already pending")
	// ErrCodeNotFound is returned for unknown, expired or already consumed codes.
	ErrCodeNotFound = errors.New("one-time code not found")
)

// CodeRepository manages one-time code persistence.
type CodeRepository interface {
	Create(ctx context.Context, code *domain.OneTimeCode) error
	Get(ctx context.Context, id string) (*domain.OneTimeCode, error)
	Consume(ctx context.Context, code *domain.OneTimeCode) error
	DeleteForPrincipal(ctx context.Context, role domain.Role, principalID string) error
}

// consumeScript deletes the code record and, if it still points at this code,
// the principal's pending marker. Returns 0 when the record was already gone.
var consumeScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
  return 0
end
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return 1
`)

type codeRepository struct {
	client *redis.Client
}

// NewCodeRepository returns a Redis-backed implementation.
func NewCodeRepository(client *redis.Client) CodeRepository {
	return &codeRepository{client: client}
}

func codeKey(id string) string {
	return "otp:code:" + id
}

// pendingKey is scoped by purpose: a reset request never occupies the login slot.
func pendingKey(purpose domain.CodePurpose, role domain.Role, principalID string) string {
	return fmt.Sprintf("otp:pending:%s:%s:%s", strings.ToLower(string(purpose)), role.Slug(), principalID)
}

// Create claims the principal's pending slot for the code's purpose with SET
// NX before writing the record, so only one code per flow can be outstanding.
func (r *codeRepository) Create(ctx context.Context, code *domain.OneTimeCode) error {
	ttl := code.ExpiresAt.Sub(code.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("code %s has no validity window", code.ID)
	}

	pk := pendingKey(code.Purpose, code.Role, code.PrincipalID)
	claimed, err := r.client.SetNX(ctx, pk, code.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return ErrCodePending
	}

	data, err := json.Marshal(code)
	if err != nil {
		_ = r.client.Del(ctx, pk).Err()
		return fmt.Errorf("encode code: %w", err)
	}
	if err := r.client.Set(ctx, codeKey(code.ID), data, ttl).Err(); err != nil {
		_ = r.client.Del(ctx, pk).Err()
		return err
	}
	return nil
}

func (r *codeRepository) Get(ctx context.Context, id string) (*domain.OneTimeCode, error) {
	data, err := r.client.Get(ctx, codeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	var code domain.OneTimeCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &code, nil
}

func (r *codeRepository) Consume(ctx context.Context, code *domain.OneTimeCode) error {
	deleted, err := consumeScript.Run(ctx, r.client,
		[]string{codeKey(code.ID), pendingKey(code.Purpose, code.Role, code.PrincipalID)},
		code.ID,
	).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// DeleteForPrincipal drops the outstanding codes of every purpose.
func (r *codeRepository) DeleteForPrincipal(ctx context.Context, role domain.Role, principalID string) error {
	for _, purpose := range domain.CodePurposes {
		pk := pendingKey(purpose, role, principalID)
		id, err := r.client.Get(ctx, pk).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		if err := r.client.Del(ctx, codeKey(id), pk).Err(); err != nil {
			return err
		}
	}
	return nil
}

