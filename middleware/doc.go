// Package middleware adapts authkeep.Engine to net/http.
//
// # Guards
//
//   - [Authenticate] resolves a bearer token to the current user. A request
//     without a token proceeds unauthenticated.
//   - [RequireUser] rejects requests that Authenticate did not resolve.
//   - [RequireRole] additionally requires a role.
//
// Authenticate also attaches the client address and User-Agent to the request
// context so that handlers calling Engine.Login record them.
//
// This package makes no authentication decision of its own; every token is
// judged by Engine.CurrentUser.
package middleware
