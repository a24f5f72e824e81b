// Package x402 implements the x402 pay-per-request protocol over HTTP 402
// for Substrate-based chains.
//
// The server side is an http.Handler middleware (PaymentMiddleware) and a
// matching pair of gRPC interceptors (see the grpc subpackage) that gate
// protected endpoints behind an ordered validation pipeline: header decode,
// network and asset match, sr25519 signature verification, expiry, recipient
// and amount checks, an optional custom policy, and optional delegation to a
// remote settlement facilitator.
//
// The client side is a negotiating Client that answers a 402 by building,
// signing and attaching a payment, then retrying the request exactly once.
//
// Chain-specific pieces (SS58 addresses, the canonical payload encoding,
// blake2b hashing, sr25519 signing and the facilitator client) live in the
// substrate subpackage.
package x402
