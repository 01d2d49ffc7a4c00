// Package jwt issues and verifies the signed, expiring bearer tokens handed
// out at login.
//
// Tokens are HS256 JWTs carrying the subject (user id), the username, the
// role list and the iat/exp/jti registered claims. Parsing always verifies
// the signature before any claim is consulted, and every failure is reported
// as one of [ErrSignatureInvalid], [ErrExpired] or [ErrMalformed], all of
// which wrap [ErrInvalid].
package jwt
