package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationChecker checks token revocation against a Redis blacklist
type RedisRevocationChecker struct {
	client *redis.Client
}

// NewRedisRevocationChecker creates a new Redis-backed revocation checker
func NewRedisRevocationChecker(client *redis.Client) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsTokenRevoked reports whether the token hash is present in the blacklist
func (r *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	hash := sha256.Sum256([]byte(tokenString))
	key := fmt.Sprintf("revoked_token:%s", hex.EncodeToString(hash[:]))

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
