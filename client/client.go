package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/totegamma/castline/internal/usecase"
)

const (
	defaultTimeout = 3 * time.Second
	verdictTTL     = 10 * time.Minute
)

// ModerationClient asks a remote media classifier whether a media URL may be
// shown. Verdicts are cached per URL.
type ModerationClient struct {
	client *resty.Client
	cache  *cache.Cache
}

func NewModerationClient(endpoint, apiKey string) *ModerationClient {
	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "castline").
		SetTimeout(defaultTimeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}

	return &ModerationClient{
		client: c,
		cache:  cache.New(verdictTTL, 15*time.Minute),
	}
}

type moderateRequest struct {
	URL string `json:"url"`
}

func (c *ModerationClient) Moderate(ctx context.Context, mediaURL string) (usecase.ModerationVerdict, error) {
	cacheKey := "verdict:" + mediaURL
	if x, found := c.cache.Get(cacheKey); found {
		return x.(usecase.ModerationVerdict), nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&moderateRequest{URL: mediaURL}).
		Post("/v1/moderate")
	if err != nil {
		return usecase.ModerationVerdict{}, errors.Wrap(err, "moderation request")
	}
	if resp.StatusCode() != http.StatusOK {
		return usecase.ModerationVerdict{}, errors.Errorf("moderation status %d: %s", resp.StatusCode(), resp.String())
	}

	var verdict usecase.ModerationVerdict
	if err := json.Unmarshal(resp.Body(), &verdict); err != nil {
		return usecase.ModerationVerdict{}, errors.Wrap(err, "decode verdict")
	}

	c.cache.Set(cacheKey, verdict, cache.DefaultExpiration)
	return verdict, nil
}
