// Package services exposes the auction engine over HTTP.
//
// Mutating requests arrive as signed envelopes; the recovered signer address
// is the caller identity the engine authorizes against, so the transport
// never trusts a claimed address. Queries are plain GETs.
//
// The handler installs itself as the engine's observer: every committed
// state change is written through to the configured Store and broadcast to
// websocket subscribers on /ws.
package services
