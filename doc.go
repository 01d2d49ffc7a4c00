// Package authkeep is an authentication and session-integrity core.
//
// An [Engine] verifies passwords, issues signed expiring tokens, keeps exactly
// one live token per username in a shared TTL cache, and locks accounts after
// repeated failed logins. Every operation takes the caller's identity
// explicitly, either as the raw bearer token or as a user id for
// administrative calls. No ambient "current user" exists.
//
// # Session model
//
// The session cache is the whitelist of record. A token is accepted by
// [Engine.CurrentUser] only if it verifies, it is byte-for-byte the token
// stored for its username, and the account is enabled and not locked. A new
// login, a refresh, a logout or a credential change replaces or removes that
// entry, which invalidates the previous token immediately.
//
// Sequential logins are idempotent: while the cached token is still valid it
// is returned again with its cache TTL extended. Concurrent logins for the
// same username are last-writer-wins unless [SessionConfig.GuardedWrites] is
// set, in which case writes are compare-and-swap and racing logins converge
// on one token.
//
// # Lockout
//
// Wrong passwords increment a per-account counter stored on the user record.
// Reaching [LockoutConfig.FailLimit] locks the account for
// [LockoutConfig.Duration]. Counter updates use the record's optimistic-lock
// version and retry on conflict.
//
// # Collaborators
//
// Callers supply a [UserStore] and, optionally, a [RoleStore]. The
// userstore/memory and userstore/postgres packages provide implementations.
// The session cache is Redis via [Builder.WithRedis] or any [session.Cache].
package authkeep
