// Package http provides the retrying HTTP client used for catalog queries
// and patch transfers.
//
// All requests go through the shared session.Provider client, so they carry
// the session cookies and the service-mandated user agent. Transient
// failures (transport errors, 5xx) are retried with exponential backoff and
// jitter; a 401 triggers a single session refresh outside the retry budget.
//
// Redirects are walked manually because the catalog service sets cookies on
// intermediate hops.
package http
