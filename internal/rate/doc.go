// Package rate throttles failed logins per client IP with Redis fixed-window
// counters.
//
// The per-account lockout lives in the user record; this limiter only slows
// down one address spraying many usernames. Keys are "lip:<ip>": INCR on each
// failure, EXPIRE on the first hit of a window.
package rate
