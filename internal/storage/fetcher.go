package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	fetchTimeout   = 30 * time.Second
	maxFetchBytes  = 4 * MaxUploadBytes
	fetchRetries   = 2
	fetchRetryWait = 500 * time.Millisecond
)

// Fetcher reads attachment bytes by URL. URLs belonging to the object store
// are read from the store directly, anything else is fetched over HTTP.
type Fetcher struct {
	store  ObjectStore
	client *resty.Client
}

func NewFetcher(store ObjectStore) *Fetcher {
	client := resty.New().
		SetTimeout(fetchTimeout).
		SetRetryCount(fetchRetries).
		SetRetryWaitTime(fetchRetryWait).
		SetResponseBodyLimit(maxFetchBytes).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, resty.ErrResponseBodyTooLarge)
			}
			return res.StatusCode() >= 500
		})

	return &Fetcher{store: store, client: client}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.store != nil {
		if key, ok := f.store.KeyForURL(url); ok {
			return f.store.GetObject(ctx, key)
		}
	}

	res, err := f.client.R().SetContext(ctx).Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("attachment at %s is larger than the %d byte limit", url, f.client.ResponseBodyLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", url, err)
	}
	if !res.IsSuccess() {
		slog.Warn("attachment fetch returned error", "url", url, "status_code", res.StatusCode())
		return nil, fmt.Errorf("fetching %s returned status %d", url, res.StatusCode())
	}

	return res.Body(), nil
}
