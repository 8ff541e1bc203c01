package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/infra/metrics"
)

var _ adapter.ImageGenerator = (*AsyncPollClient)(nil)

var (
	doneStates  = map[string]bool{"completed": true, "success": true, "done": true, "succeeded": true}
	errorStates = map[string]bool{"failed": true, "error": true}
)

// AsyncPollClient submits a job and then polls its status endpoint on a
// fixed interval until a terminal state or the attempt budget runs out.
type AsyncPollClient struct {
	desc       model.ProviderDescriptor
	client     *http.Client
	normalizer *Normalizer
	sleep      func(ctx context.Context, d time.Duration) error
	log        *zerolog.Logger
}

func NewAsyncPollClient(desc model.ProviderDescriptor, log *zerolog.Logger) *AsyncPollClient {
	l := log.With().Str("component", "AsyncPollClient").Str("provider", desc.Name).Logger()
	return &AsyncPollClient{
		desc:   desc,
		client: newHTTPClient(desc.Timeout),
		normalizer: NewNormalizer(
			Strategy{Name: "data.data.images", Path: "data.data.images"},
			Strategy{Name: "data.data", Path: "data.data"},
			Strategy{Name: "data.data.image_urls", Path: "data.data.image_urls"},
		),
		sleep: sleepCtx,
		log:   &l,
	}
}

// WithSleep replaces the inter-poll wait; tests use it to run without delay.
func (c *AsyncPollClient) WithSleep(fn func(ctx context.Context, d time.Duration) error) *AsyncPollClient {
	c.sleep = fn
	return c
}

type asyncSubmitRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	ImageSize   string   `json:"image_size,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
}

func (c *AsyncPollClient) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	jobID, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	l := c.log.With().Str("task_id", req.TaskID).Str("job_id", jobID).Logger()
	statusURL := strings.TrimRight(c.desc.StatusEndpoint, "/") + "/" + jobID
	budget := c.desc.MaxPollAttempts

	for attempt := 1; attempt <= budget; attempt++ {
		if err := c.sleep(ctx, c.desc.PollInterval); err != nil {
			return nil, &domain.TimeoutError{Provider: c.desc.Name, Attempts: attempt - 1, Err: err}
		}
		st, err := c.pollOnce(ctx, statusURL, req.APIKey)
		switch {
		case err != nil:
			metrics.IncPollAttempt(c.desc.Name, "transient")
			l.Warn().Err(err).Int("attempt", attempt).Msg("status poll failed, retrying")
		case st.failed:
			metrics.IncPollAttempt(c.desc.Name, "failed")
			return nil, &domain.ProviderError{Provider: c.desc.Name, Message: "task failed: " + st.message}
		case st.done && len(st.images) > 0:
			metrics.IncPollAttempt(c.desc.Name, "done")
			l.Info().Int("attempt", attempt).Int("images", len(st.images)).Msg("async job completed")
			return st.images, nil
		case st.done:
			metrics.IncPollAttempt(c.desc.Name, "done")
			l.Warn().Int("attempt", attempt).Msg("job reported done without images, polling again")
		default:
			metrics.IncPollAttempt(c.desc.Name, "pending")
			l.Debug().Int("attempt", attempt).Str("state", st.state).Msg("job still running")
		}
	}
	return nil, &domain.TimeoutError{Provider: c.desc.Name, Attempts: budget}
}

func (c *AsyncPollClient) submit(ctx context.Context, req adapter.GenerateRequest) (string, error) {
	endpoint := c.desc.Endpoint
	if len(req.ReferenceImages) > 0 && c.desc.EditEndpoint != "" {
		endpoint = c.desc.EditEndpoint
	}
	body := asyncSubmitRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		ImageSize:   req.Resolution,
		ImageURLs:   req.ReferenceImages,
	}
	headers := map[string]string{"Authorization": req.APIKey}
	code, raw, err := doJSON(ctx, c.client, http.MethodPost, endpoint, headers, body)
	if err != nil {
		return "", transportError(c.desc.Name, err)
	}
	if !isSuccess(code) {
		return "", httpError(c.desc.Name, code, raw)
	}
	res := gjson.ParseBytes(raw)
	jobID := res.Get("data.task_id").String()
	if res.Get("code").Int() != 200 || jobID == "" {
		msg := upstreamMessage(raw)
		if msg == "" {
			msg = "submit rejected"
		}
		return "", &domain.ProviderError{Provider: c.desc.Name, Message: msg}
	}
	c.log.Info().Str("task_id", req.TaskID).Str("job_id", jobID).Str("endpoint", endpoint).Msg("async job submitted")
	return jobID, nil
}

type pollStatus struct {
	state   string
	done    bool
	failed  bool
	message string
	images  []string
}

var errNoEnvelope = errors.New("status response without a code 200 envelope")

// pollOnce performs one status request. Transport failures, non-2xx answers
// and malformed bodies come back as errors so the caller can retry.
func (c *AsyncPollClient) pollOnce(ctx context.Context, url, key string) (pollStatus, error) {
	code, raw, err := doJSON(ctx, c.client, http.MethodGet, url, map[string]string{"Authorization": key}, nil)
	if err != nil {
		return pollStatus{}, err
	}
	if !isSuccess(code) {
		return pollStatus{}, fmt.Errorf("status http %d", code)
	}
	if !gjson.ValidBytes(raw) {
		return pollStatus{}, errors.New("status response is not JSON")
	}
	res := gjson.ParseBytes(raw)
	if env := res.Get("code"); env.Exists() && env.Int() != 200 {
		return pollStatus{}, errNoEnvelope
	}
	data := res.Get("data")
	if !data.IsObject() {
		return pollStatus{}, errNoEnvelope
	}

	st := pollStatus{state: strings.ToLower(firstString(data, "state", "status"))}
	switch {
	case doneStates[st.state]:
		st.done = true
		st.images = c.normalizer.Normalize(raw)
	case errorStates[st.state]:
		st.failed = true
		st.message = firstString(data, "msg", "error")
		if st.message == "" {
			st.message = "unknown error"
		}
	}
	return st, nil
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s.Type == gjson.String && s.Str != "" {
			return s.Str
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
