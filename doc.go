// Package jirapo provides the resilient HTTP access layer shared by the
// jira-po-toolkit report scripts:
//
//   - Credential and TLS trust resolution from layered configuration
//     (process env > settings file > ambient CA bundle > standard trust)
//   - A connection-pooled client with retries, exponential backoff + jitter
//     and Retry-After support for transient failures (5xx, 429, transport)
//   - Bounded-concurrency batch fetching of independent resources with
//     per-item retry and structural partial-failure reporting
//   - Offset pagination that walks a listing endpoint to completion
//
// Design goals:
//   - Small surface area, functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - No hidden globals: callers hold a Resolver / Shared handle and inject
//     the client into report code explicitly
//   - The layer never prints or exits; errors carry enough context for the
//     calling report to do the user-facing messaging
//
// Typical usage:
//
//	resolver := jirapo.NewResolver(jirapo.WithSettingsFile(".jira_environment"))
//	shared := jirapo.NewShared(resolver, jirapo.WithMetrics())
//	client, err := shared.Client()
//	issues, err := client.FetchAll(ctx, "/rest/agile/1.0/sprint/42/issue", nil, jirapo.PageOptions{})
//	epics, err := client.FetchBatch(ctx, keys, jirapo.BatchOptions{})
//
// HTTP status errors are not turned into Go errors by the client itself;
// call ErrorFromResponse where a non-2xx response should be fatal.
package jirapo
