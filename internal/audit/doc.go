// Package audit buffers and delivers security events such as logins,
// lockouts and credential changes.
//
// The Engine decides which events to emit. This package only moves them: a
// [Dispatcher] relays events asynchronously to a [Sink], optionally dropping
// them when its buffer is full and counting what it dropped.
package audit
