package jirapo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basjes1977/jira-po-toolkit/internal/backoff"
)

// Batch defaults, matching the sequential scripts this layer replaced:
// ten in-flight requests keeps a Jira Cloud backend from answering with
// cascading 429s, and three attempts with 1s/2s sleeps rides out blips.
const (
	defaultBatchConcurrency = 10
	defaultBatchAttempts    = 3
	defaultBatchBackoff     = time.Second
	maxBatchBackoff         = 30 * time.Second
)

var defaultBatchFields = []string{"summary", "parent", "issuelinks", "labels", "status"}

// BatchOptions tunes one FetchBatch call. The zero value uses the defaults
// above and fetches issues from /rest/api/3/issue/{id}.
type BatchOptions struct {
	// Fields is the field selection requested per item.
	Fields []string
	// Concurrency bounds the number of in-flight requests.
	Concurrency int
	// MaxAttempts is the per-item attempt budget.
	MaxAttempts int
	// BackoffBase scales the per-item retry sleeps (base, 2*base, ...).
	BackoffBase time.Duration
	// Resource maps an id to its request path.
	Resource func(id string) string
}

func (o *BatchOptions) applyDefaults() {
	if len(o.Fields) == 0 {
		o.Fields = defaultBatchFields
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultBatchConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultBatchAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBatchBackoff
	}
	if o.Resource == nil {
		o.Resource = func(id string) string {
			return "/rest/api/3/issue/" + id
		}
	}
}

// FetchBatch fetches every id concurrently, bounding in-flight requests to
// opts.Concurrency. Each item retries independently: transient failures
// (5xx, 429, transport errors) get up to opts.MaxAttempts attempts with
// sleeps of BackoffBase*2^attempt between them; any other client error
// fails the item immediately. Items bypass the request-level retry loop so
// the two policies never stack.
//
// Per-item failures never become an error: the result maps every id either
// to its payload or to nil, the absent-marker. FetchBatch itself errors
// only when the batch cannot be attempted at all (context already dead).
// Duplicate ids collapse into one map entry but are fetched independently.
func (c *Client) FetchBatch(ctx context.Context, ids []string, opts BatchOptions) (BatchResult, error) {
	results := make(BatchResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts.applyDefaults()
	fields := url.Values{"fields": []string{strings.Join(opts.Fields, ",")}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	type itemResult struct {
		id      string
		payload json.RawMessage
	}
	out := make(chan itemResult, len(ids))

	for _, id := range ids {
		id := id
		g.Go(func() error {
			payload := c.fetchBatchItem(gctx, id, fields, &opts)
			out <- itemResult{id: id, payload: payload}
			if payload == nil {
				c.metrics.RecordBatchItem("failed")
			} else {
				c.metrics.RecordBatchItem("success")
			}
			return nil
		})
	}

	// Workers only ever return nil; Wait is for completion, not errors.
	_ = g.Wait()
	close(out)

	for item := range out {
		results[item.id] = item.payload
	}
	return results, nil
}

// fetchBatchItem performs the per-item attempt loop. It never returns an
// error: a nil payload is the absent-marker.
func (c *Client) fetchBatchItem(ctx context.Context, id string, fields url.Values, opts *BatchOptions) json.RawMessage {
	target, err := c.resolveURL(opts.Resource(id), fields)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("batch item has invalid path", "id", id, "error", err)
		}
		return nil
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		resp, err := c.send(ctx, http.MethodGet, target)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			// Transport error or timeout: retryable.
		case resp.StatusCode == http.StatusOK:
			payload, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil {
				return payload
			}
			// Truncated body counts as a transport failure.
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			drainAndClose(resp)
		default:
			// Permanent client error: no point consuming more attempts.
			drainAndClose(resp)
			if c.logger != nil {
				c.logger.Debug("batch item rejected", "id", id, "status", resp.StatusCode)
			}
			return nil
		}

		if attempt == opts.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff.Delay(attempt, opts.BackoffBase, maxBatchBackoff, 2, 0)):
		}
	}

	if c.logger != nil {
		c.logger.Warn("batch item failed after retries", "id", id, "attempts", opts.MaxAttempts)
	}
	return nil
}
