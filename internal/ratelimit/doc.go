// Package ratelimit caps how often alerts sharing a key may be emitted.
//
// Each key gets a sliding one-hour window of emission timestamps. When the
// window holds max-per-hour emissions, the key enters a cooldown during
// which every request is denied. Once the cooldown has expired and the
// window has drained, the key emits freely again.
//
// The per-key state lives behind the Store interface. MemoryStore keeps it
// in process, SQLiteStore keeps it in a database file on one host, and
// RedisStore shares it between processes.
package ratelimit
