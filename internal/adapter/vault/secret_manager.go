// Package vault overlays secrets kept in a HashiCorp Vault KV v2 engine
// onto the loaded configuration.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

// Secret keys read from the KV entry
const (
	KeyDatabaseURL    = "database_url"
	KeyRedisURL       = "redis_url"
	KeyJWTSecret      = "jwt_secret"
	KeySendGridAPIKey = "sendgrid_api_key"
	KeySMTPPassword   = "smtp_password"
)

type SecretManager struct {
	client *api.Client
	log    *zap.Logger
}

func NewSecretManager(address, token string, log *zap.Logger) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client, log: log}, nil
}

// Read returns the string values stored at a KV v2 data path such as
// "secret/data/evrental". A missing entry yields an empty map.
func (sm *SecretManager) Read(ctx context.Context, path string) (map[string]string, error) {
	secret, err := sm.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, err)
	}
	out := make(map[string]string)
	if secret == nil || secret.Data == nil {
		return out, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault read %s: not a KV v2 entry", path)
	}
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// Overlay replaces configured secrets with the ones found in Vault.
// Keys absent from Vault leave the file or environment value in place.
func (sm *SecretManager) Overlay(ctx context.Context, cfg *config.Config) error {
	secrets, err := sm.Read(ctx, cfg.Vault.Path)
	if err != nil {
		return err
	}

	targets := map[string]*string{
		KeyDatabaseURL:    &cfg.Database.URL,
		KeyRedisURL:       &cfg.Redis.URL,
		KeyJWTSecret:      &cfg.JWT.Secret,
		KeySendGridAPIKey: &cfg.Notification.Email.APIKey,
		KeySMTPPassword:   &cfg.Notification.Email.SMTPPassword,
	}
	applied := make([]string, 0, len(targets))
	for key, dst := range targets {
		if v := secrets[key]; v != "" {
			*dst = v
			applied = append(applied, key)
		}
	}

	sm.log.Info("Applied secrets from Vault", zap.String("path", cfg.Vault.Path), zap.Strings("keys", applied))
	return nil
}
