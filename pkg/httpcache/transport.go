package httpcache

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// Transport is an http.RoundTripper that serves GET responses from a Store
// and revalidates stale entries with conditional requests.
//
// Only 200 responses are stored. A 304 moves the freshness deadline of the
// stored entry, a 404 drops it. Store failures are logged and the request
// proceeds upstream.
type Transport struct {
	store  Store
	next   http.RoundTripper
	logger zerolog.Logger
}

// NewTransport wraps next (http.DefaultTransport when nil) with store.
func NewTransport(store Store, next http.RoundTripper, logger *zerolog.Logger) *Transport {
	if store == nil {
		panic("httpcache: store cannot be nil")
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{
		store:  store,
		next:   next,
		logger: logging.OrDefault(logger, logging.ComponentHTTPCache),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Header.Get("Range") != "" {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	key := KeyForRequest(req)

	entry, err := t.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("http cache lookup failed")
		}
		entry = nil
	}

	if entry != nil && !entry.IsExpired() {
		CacheHits.Inc()
		t.logger.Debug().Str("key", key.String()).Dur("ttl", entry.TTL()).Msg("http cache hit")
		return EntryToResponse(entry, req), nil
	}
	CacheMisses.Inc()

	outReq := req
	if ShouldMakeConditionalRequest(entry) {
		// RoundTrippers must not modify the caller's request
		outReq = req.Clone(ctx)
		AddConditionalHeaders(outReq, entry)
		ConditionalRequestsSent.Inc()
	}

	resp, err := t.next.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && entry != nil:
		NotModifiedResponses.Inc()
		resp.Body.Close()

		entry.Expires = parseExpires(resp.Header)
		if etag := resp.Header.Get("ETag"); etag != "" && etag != entry.ETag {
			entry.ETag = etag
			entry.CachedAt = time.Now()
			err = t.store.Set(ctx, key, entry)
		} else {
			err = t.store.UpdateTTL(ctx, key, entry.Expires)
		}
		if err != nil {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("http cache refresh failed")
		}

		t.logger.Debug().Str("key", key.String()).Msg("http cache revalidated")
		return EntryToResponse(entry, req), nil

	case resp.StatusCode == http.StatusOK:
		fresh, err := ResponseToEntry(resp)
		if err != nil {
			return nil, err
		}
		if err := t.store.Set(ctx, key, fresh); err != nil {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("http cache store failed")
		}

	case resp.StatusCode == http.StatusNotFound && entry != nil:
		if err := t.store.Delete(ctx, key); err != nil {
			t.logger.Warn().Err(err).Str("key", key.String()).Msg("http cache delete failed")
		}
		t.logger.Debug().Str("key", key.String()).Msg("http cache entry dropped, resource gone")
	}

	return resp, nil
}
