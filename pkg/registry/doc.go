// Package registry holds the server's identity-keyed connection table.
//
// Each entry is keyed by a stable connection id derived from the client's
// credential (see ResolveIdentity). An entry owns exactly one transport at a
// time: a reconnect under the same id replaces the transport instead of
// creating a second entry, and the replaced transport is closed.
//
// Entries outlive their transports. Closing a connection marks the entry
// closed and resets its subscriptions to the default set; the entry is only
// removed by the eviction loop once it has been closed for longer than
// Config.EvictAfter.
package registry
