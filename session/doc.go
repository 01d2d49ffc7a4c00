// Package session keeps the single live token of every user in a TTL cache.
//
// The [Cache] interface is the narrow key-value collaborator (set, get,
// expire, delete). [RedisCache] is its go-redis implementation and also
// offers compare-and-swap writes through Lua scripts. [Store] layers the
// per-username session semantics on top: one entry per user, overwritten on
// each new login, removed on logout or credential change.
//
// Unreachable backends are always reported as [ErrUnavailable] and never as
// a missing entry.
//
// This package does not interpret tokens. Deciding whether a cached token is
// still acceptable belongs to the Engine.
package session
