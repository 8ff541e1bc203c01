package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/infra/metrics"
)

const maxImageBytes = 32 << 20

var _ adapter.ImageRelocator = (*Relocator)(nil)

// Relocator copies provider hosted images into the blob store. A failed copy
// keeps the original URL at its position.
type Relocator struct {
	source      adapter.BlobStoreSource
	client      *http.Client
	concurrency int
	now         func() time.Time
	log         *zerolog.Logger
}

func NewRelocator(source adapter.BlobStoreSource, concurrency int, timeout time.Duration, log *zerolog.Logger) *Relocator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	l := log.With().Str("component", "Relocator").Logger()
	return &Relocator{
		source:      source,
		client:      &http.Client{Timeout: timeout},
		concurrency: concurrency,
		now:         time.Now,
		log:         &l,
	}
}

func (r *Relocator) Relocate(ctx context.Context, prefix string, urls []string) []string {
	out := append([]string(nil), urls...)
	if len(urls) == 0 {
		return out
	}
	store, err := r.source.Current(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("storage settings unavailable, keeping provider urls")
		metrics.IncRelocation("skipped")
		return out
	}
	if store == nil {
		return out
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "output"
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if store.Owns(u) {
				return nil
			}
			moved, err := r.relocateOne(ctx, store, prefix, u)
			if err != nil {
				r.log.Warn().Err(err).Msg("image relocation failed, keeping original")
				metrics.IncRelocation("kept_original")
				return nil
			}
			out[i] = moved
			metrics.IncRelocation("relocated")
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Relocator) relocateOne(ctx context.Context, store adapter.BlobStore, prefix, src string) (string, error) {
	data, contentType, err := r.fetch(ctx, src)
	if err != nil {
		return "", &domain.RelocationError{URL: shortURL(src), Op: "download", Err: err}
	}
	key := fmt.Sprintf("%s/%d-%s.%s", prefix, r.now().UnixMilli(), randomSuffix(), extensionFor(contentType))
	dst, err := store.Put(ctx, key, data, contentType)
	if err != nil {
		return "", &domain.RelocationError{URL: shortURL(src), Op: "upload", Err: err}
	}
	return dst, nil
}

func (r *Relocator) fetch(ctx context.Context, src string) ([]byte, string, error) {
	if strings.HasPrefix(src, "data:") {
		return decodeDataURI(src)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxImageBytes {
		return nil, "", errors.New("image too large")
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

// decodeDataURI handles data:<mime>;base64,<payload>.
func decodeDataURI(src string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("unsupported data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data uri: %w", err)
	}
	ct := strings.TrimSuffix(header, ";base64")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

func extensionFor(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(ct) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "png"
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// shortURL keeps data URIs out of logs.
func shortURL(u string) string {
	if strings.HasPrefix(u, "data:") {
		return "data-uri"
	}
	if len(u) > 200 {
		return u[:200]
	}
	return u
}
