package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/crypto"
	"gitlab.com/timkado/api/social-feed-client/pkg/rediskeys"
)

// CredentialStoreAdapter implements domain.CredentialStore on Redis. Values are
// sealed with AES-GCM when an encryption key is configured.
type CredentialStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	namespace   string
	aesKeyHex   string
}

// NewCredentialStoreAdapter creates a credential store scoped to namespace.
// An empty aesKeyHex stores values in plain text.
func NewCredentialStoreAdapter(redisClient *redis.Client, logger domain.Logger, namespace, aesKeyHex string) (*CredentialStoreAdapter, error) {
	if redisClient == nil {
		return nil, errors.New("redisClient cannot be nil in NewCredentialStoreAdapter")
	}
	if namespace == "" {
		return nil, errors.New("namespace cannot be empty in NewCredentialStoreAdapter")
	}
	if aesKeyHex != "" {
		if err := crypto.ValidateKey(aesKeyHex); err != nil {
			return nil, fmt.Errorf("invalid credential encryption key: %w", err)
		}
	}
	return &CredentialStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
		namespace:   namespace,
		aesKeyHex:   aesKeyHex,
	}, nil
}

func (a *CredentialStoreAdapter) key(slot domain.CredentialSlot) string {
	return rediskeys.CredentialKey(a.namespace, string(slot))
}

// Get reads one slot. A value that cannot be unsealed is reported as domain.ErrSessionCorrupt.
func (a *CredentialStoreAdapter) Get(ctx context.Context, slot domain.CredentialSlot) (string, bool, error) {
	key := a.key(slot)
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "Credential slot empty", "slot", string(slot))
		return "", false, nil
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to read credential slot from Redis", "slot", string(slot), "error", err.Error())
		return "", false, fmt.Errorf("redis GET for credential key '%s' failed: %w", key, err)
	}

	if a.aesKeyHex == "" {
		return val, true, nil
	}
	plain, err := crypto.DecryptAESGCM(a.aesKeyHex, val)
	if err != nil {
		a.logger.Warn(ctx, "Failed to unseal credential slot", "slot", string(slot), "error", err.Error())
		return "", false, fmt.Errorf("%w: slot %s: %v", domain.ErrSessionCorrupt, slot, err)
	}
	return string(plain), true, nil
}

// Set writes one slot without expiry. Credentials live until logout.
func (a *CredentialStoreAdapter) Set(ctx context.Context, slot domain.CredentialSlot, value string) error {
	stored := value
	if a.aesKeyHex != "" {
		sealed, err := crypto.EncryptAESGCM(a.aesKeyHex, []byte(value))
		if err != nil {
			return fmt.Errorf("failed to seal credential slot %s: %w", slot, err)
		}
		stored = sealed
	}

	key := a.key(slot)
	if err := a.redisClient.Set(ctx, key, stored, 0).Err(); err != nil {
		a.logger.Error(ctx, "Failed to write credential slot to Redis", "slot", string(slot), "error", err.Error())
		return fmt.Errorf("redis SET for credential key '%s' failed: %w", key, err)
	}
	a.logger.Debug(ctx, "Credential slot written", "slot", string(slot), "sealed", a.aesKeyHex != "")
	return nil
}

// Delete removes one slot. Deleting an empty slot succeeds.
func (a *CredentialStoreAdapter) Delete(ctx context.Context, slot domain.CredentialSlot) error {
	key := a.key(slot)
	if err := a.redisClient.Del(ctx, key).Err(); err != nil {
		a.logger.Error(ctx, "Failed to delete credential slot from Redis", "slot", string(slot), "error", err.Error())
		return fmt.Errorf("redis DEL for credential key '%s' failed: %w", key, err)
	}
	return nil
}
