// Package crypto provides the account identity primitives used across the
// auction engine: Ed25519 key pairs, signatures, and the 20-byte addresses
// derived from public keys that identify sellers, bidders, payment media, and
// asset collections.
//
// All key and signature types are thin byte-slice wrappers with hex string
// representations, suitable for use as map keys and in JSON payloads. The
// Signed envelope authenticates caller-facing requests: the engine never
// trusts a claimed identity, it recovers the signer's address from the
// signature.
package crypto
