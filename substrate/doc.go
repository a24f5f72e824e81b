// Package substrate binds the x402 protocol to Substrate-based chains:
// SS58 address codec, the canonical payload encoding and its blake2b-256
// hash, sr25519 signing and verification, and the HTTP client for the
// settlement facilitator.
package substrate
