package jirapo

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// PageOptions tunes FetchAll. The zero value requests 50 items per page.
type PageOptions struct {
	PageSize int
}

const defaultPageSize = 50

// page is the offset-paginated envelope Jira wraps collections in. Core
// endpoints put items under "issues", agile endpoints under "values".
type page struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
	Values     []json.RawMessage `json:"values"`
}

func (p *page) items() []json.RawMessage {
	if p.Issues != nil {
		return p.Issues
	}
	return p.Values
}

// FetchAll walks an offset-paginated listing endpoint to completion and
// returns every item in server order. Each page goes through Request and so
// inherits the retry policy; a page answered with an error status aborts
// the walk with an *APIError.
//
// Termination is driven by the server's declared total: the walk stops when
// startAt+received >= total. A page that returns no items also stops the
// walk, so a server whose total disagrees with what it actually serves
// cannot loop the fetcher forever. A total of 0 or an empty first page
// yields an empty result after one request.
func (c *Client) FetchAll(ctx context.Context, path string, query url.Values, opts PageOptions) ([]json.RawMessage, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	q := url.Values{}
	for key, values := range query {
		q[key] = values
	}

	var collected []json.RawMessage
	startAt := 0

	for {
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(pageSize))

		resp, err := c.Get(ctx, path, q)
		if err != nil {
			return nil, err
		}
		if err := ErrorFromResponse(resp); err != nil {
			return nil, err
		}

		var p page
		if err := DecodeJSON(resp, &p); err != nil {
			return nil, &ClientError{Type: ErrorTypeValidation, Message: "cannot decode page", Cause: err, Method: "GET", URL: path}
		}
		c.metrics.RecordPage()

		items := p.items()
		collected = append(collected, items...)

		received := len(items)
		if received == 0 || startAt+received >= p.Total {
			break
		}
		startAt += received
	}

	return collected, nil
}
