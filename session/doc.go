// Package session orchestrates per-device cryptographic sessions around an
// external session-repository capability.
//
// The package does not implement ratchet math. A Store provides session
// establishment, encryption and decryption for one peer device; the
// Orchestrator layers the engine's policy on top: asserting sessions before
// use (with forced re-establishment after a retry signal), fanning
// encryption out across a peer's device list with a partial-failure policy,
// and tagging decryption failures with a cause so the receive pipeline can
// branch into the retry protocol instead of failing hard.
//
// A default Store backed by pairwise Noise-IK sessions is included for
// in-process use and testing; production deployments inject their own.
package session
