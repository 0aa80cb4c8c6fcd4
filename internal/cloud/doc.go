// Package cloud provides the authenticated client for the vendor cloud API.
//
// The vendor exposes no documented API; the wire contract here was recovered
// by observing the mobile applications and must be preserved exactly. Two
// types cooperate:
//
//   - Session: performs the OAuth2 authorization-code-with-PKCE login dance
//     against the vendor's web-based identity service and owns the bearer
//     token lifecycle (issue, refresh-token grant, forced re-login).
//   - Client: issues throttled HTTP requests with the current bearer token
//     and classifies failures into the auth/network/protocol taxonomy.
//
// The login sequence is not a JSON API: it fetches an HTML login form,
// extracts the anti-forgery token from it, posts credentials with the
// session cookies carried forward, and chases the resulting redirects by
// hand to capture the authorization code. Cookie attributes are stripped
// because the identity service emits attributes Go's cookie jar mishandles.
//
// Authentication attempts are throttled to one per two minutes; repeated
// callers inside the window receive the cached outcome. A full re-login
// bumps the session epoch so consumers drop account and device caches.
//
// # Error taxonomy
//
//   - ErrAuth: credentials rejected or session invalid (HTTP 401)
//   - NetworkError / ErrNetwork: transport failure with a reason code
//   - ProtocolError / ErrProtocol: unexpected status or malformed body
//
// Nothing here is fatal; callers retry on the next poll tick.
package cloud
