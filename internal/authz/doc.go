// Package authz provides the access control guard for the assistant API.
//
// This package implements:
//   - An immutable role set (admin tier and read-only tier) loaded once at start
//   - Static per-operation policies (admin, any role, public)
//   - A pure guard that turns (Identity, Policy) into an Allow or Deny decision
//
// The guard never performs I/O. Identity resolution (token validation, user
// lookup) happens upstream; translating a Deny into a protocol status code is
// the caller's job.
package authz
