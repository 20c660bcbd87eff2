// Package session implements the ephemeral session registry in Redis.
//
// A session is a versioned binary blob keyed by session id with a TTL
// mirroring the refresh-token lifetime. A secondary index set per account
// allows enumerating a user's live sessions for revoke-all. Deletion runs
// as a Lua script so the blob and the index entry stay consistent.
//
// The registry holds live validity only: the durable SessionMetadata twin
// (audit source of truth) is written by the engine, not this package.
package session
