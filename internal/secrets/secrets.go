// Package secrets resolves the Gemini API keys from AWS Secrets Manager when
// a secret name is configured, with a short in-process cache so restarts of
// downstream callers do not hammer the API.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const cacheTTL = 5 * time.Minute

type Manager struct {
	client *secretsmanager.Client

	mu    sync.RWMutex
	cache map[string]cached
	now   func() time.Time
}

type cached struct {
	value     string
	expiresAt time.Time
}

func New(ctx context.Context, region string) (*Manager, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg), nil
}

func NewWithConfig(cfg aws.Config) *Manager {
	return &Manager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]cached),
		now:    time.Now,
	}
}

func (m *Manager) getSecret(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	if c, ok := m.cache[name]; ok && m.now().Before(c.expiresAt) {
		m.mu.RUnlock()
		return c.value, nil
	}
	m.mu.RUnlock()

	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", name, err)
	}

	value := aws.ToString(out.SecretString)

	m.mu.Lock()
	m.cache[name] = cached{value: value, expiresAt: m.now().Add(cacheTTL)}
	m.mu.Unlock()

	return value, nil
}

// GeminiKeys reads the named secret and parses it as a key list. Accepted
// shapes: a JSON array of strings, a JSON object {"keys": [...]}, or a plain
// comma-separated string.
func (m *Manager) GeminiKeys(ctx context.Context, name string) ([]string, error) {
	raw, err := m.getSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	return ParseKeys(raw), nil
}

// ParseKeys extracts key strings from a secret value.
func ParseKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return clean(list)
	}

	var wrapped struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped.Keys) > 0 {
		return clean(wrapped.Keys)
	}

	return clean(strings.Split(raw, ","))
}

func clean(keys []string) []string {
	var out []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
