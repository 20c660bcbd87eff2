// Package stores implements the Redis record stores backing ephemeral
// security state: OTP challenges and the token revocation list.
//
// Records are binary-encoded with a leading version byte. Challenge
// verification runs under WATCH so concurrent attempts on the same
// challenge never lose an attempt increment.
package stores
