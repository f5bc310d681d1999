// Package auth issues and validates the HMAC-signed access tokens used by the
// API. Token subjects are usernames; roles are never read from the token and
// are always loaded from the user store per request.
package auth
