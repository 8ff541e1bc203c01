package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

// SettingsReader yields the effective storage settings.
type SettingsReader interface {
	StorageSettings(ctx context.Context) (model.StorageSettings, error)
}

var _ adapter.BlobStoreSource = (*DynamicS3)(nil)

// DynamicS3 rebuilds the S3 client whenever the stored settings change, so
// operators can switch buckets without a restart.
type DynamicS3 struct {
	settings SettingsReader
	timeout  time.Duration
	log      *zerolog.Logger

	mu          sync.Mutex
	fingerprint string
	current     *S3Store
}

func NewDynamicS3(settings SettingsReader, timeout time.Duration, log *zerolog.Logger) *DynamicS3 {
	l := log.With().Str("component", "DynamicS3").Logger()
	return &DynamicS3{settings: settings, timeout: timeout, log: &l}
}

func (d *DynamicS3) Current(ctx context.Context) (adapter.BlobStore, error) {
	s, err := d.settings.StorageSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !s.Usable() {
		return nil, nil
	}
	fp := strings.Join([]string{s.Endpoint, s.Bucket, s.AccessKey, s.SecretKey, s.Region}, "\x00")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil && d.fingerprint == fp {
		return d.current, nil
	}
	d.current = NewS3Store(s, d.timeout)
	d.fingerprint = fp
	d.log.Info().Str("endpoint", s.Endpoint).Str("bucket", s.Bucket).Msg("object storage client (re)built")
	return d.current, nil
}
