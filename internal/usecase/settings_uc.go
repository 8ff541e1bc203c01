// File: internal/usecase/settings_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"uniai-studio/internal/config"
	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
	uc "uniai-studio/internal/domain/ports/usecase"
)

// Compile-time check
var _ uc.SettingsUseCase = (*SettingsUseCase)(nil)

// SecretSealer encrypts secret setting values at rest.
type SecretSealer interface {
	Seal(settingKey, plaintext string) (string, error)
	Open(settingKey, stored string) (string, error)
}

// SettingsUseCase reads operator settings with the config file as baseline.
// Provider credentials come from the settings table first and fall back to
// the api_key of the matching provider block.
type SettingsUseCase struct {
	repo     repository.SettingRepository
	storage  config.StorageConfig
	fallback map[string]string // credential key -> api key from config
	owners   map[string]string // credential key -> provider name
	sealer   SecretSealer
	log      *zerolog.Logger
}

// NewSettingsUseCase wires the settings store. sealer may be nil, in which
// case secrets are stored as given.
func NewSettingsUseCase(repo repository.SettingRepository, sealer SecretSealer, cfg *config.Config, logger *zerolog.Logger) *SettingsUseCase {
	s := &SettingsUseCase{
		repo:     repo,
		sealer:   sealer,
		storage:  cfg.Storage,
		fallback: map[string]string{},
		owners:   map[string]string{},
	}
	for _, p := range cfg.Providers {
		if p.CredentialKey == "" {
			continue
		}
		s.owners[p.CredentialKey] = p.Name
		if p.APIKey != "" {
			s.fallback[p.CredentialKey] = p.APIKey
		}
	}
	l := logger.With().Str("component", "SettingsUseCase").Logger()
	s.log = &l
	return s
}

func (s *SettingsUseCase) Credential(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	switch {
	case err == nil && strings.TrimSpace(v) != "":
		return strings.TrimSpace(v), nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return "", err
	}
	if fb := s.fallback[key]; fb != "" {
		return fb, nil
	}
	return "", &domain.ConfigurationError{Provider: s.owners[key], Key: key}
}

// ActiveProvider returns the operator preference or "" when none is stored.
func (s *SettingsUseCase) ActiveProvider(ctx context.Context) string {
	v, err := s.repo.Get(ctx, repository.NoTX, model.SettingActiveProvider)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Msg("read active provider")
		}
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v))
}

func (s *SettingsUseCase) Get(ctx context.Context, key string) (string, error) {
	v, err := s.repo.Get(ctx, repository.NoTX, key)
	if err != nil {
		return "", err
	}
	return s.open(key, v)
}

func (s *SettingsUseCase) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &domain.ValidationError{Field: "key", Reason: "must not be empty"}
	}
	if key == model.SettingStorageEnabled {
		if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
			return &domain.ValidationError{Field: key, Reason: "must be true or false"}
		}
	}
	stored := value
	if s.sealer != nil && model.IsSecretSetting(key) {
		sealed, err := s.sealer.Seal(key, value)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		stored = sealed
	}
	if err := s.repo.Set(ctx, repository.NoTX, key, stored); err != nil {
		return err
	}
	s.log.Info().Str("key", key).Bool("secret", model.IsSecretSetting(key)).Msg("setting updated")
	return nil
}

// StorageSettings merges the storage_* settings over the config baseline.
func (s *SettingsUseCase) StorageSettings(ctx context.Context) (model.StorageSettings, error) {
	out := model.StorageSettings{
		Enabled:   s.storage.Enabled,
		Endpoint:  s.storage.Endpoint,
		Bucket:    s.storage.Bucket,
		AccessKey: s.storage.AccessKey,
		SecretKey: s.storage.SecretKey,
		Region:    s.storage.Region,
	}
	vals, err := s.repo.GetMany(ctx, repository.NoTX, model.StorageSettingKeys)
	if err != nil {
		return out, err
	}
	if v, ok := vals[model.SettingStorageEnabled]; ok {
		if b, perr := strconv.ParseBool(strings.TrimSpace(v)); perr == nil {
			out.Enabled = b
		} else {
			s.log.Warn().Str("value", v).Msg("ignoring malformed storage_enabled")
		}
	}
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(vals[key]); v != "" {
			*dst = v
		}
	}
	override(&out.Endpoint, model.SettingStorageEndpoint)
	override(&out.Bucket, model.SettingStorageBucket)
	for key, dst := range map[string]*string{
		model.SettingStorageAccessKey: &out.AccessKey,
		model.SettingStorageSecretKey: &out.SecretKey,
	} {
		v, ok := vals[key]
		if !ok {
			continue
		}
		plain, err := s.open(key, v)
		if err != nil {
			return out, err
		}
		vals[key] = plain
		override(dst, key)
	}
	return out, nil
}

func (s *SettingsUseCase) open(key, stored string) (string, error) {
	if s.sealer == nil || !model.IsSecretSetting(key) {
		return stored, nil
	}
	v, err := s.sealer.Open(key, stored)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	return v, nil
}
