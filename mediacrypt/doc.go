// Package mediacrypt implements the authenticated encryption construction
// for bulk media payloads (images, audio, video, documents).
//
// The construction is a wire-compatibility contract, not a design choice:
// four sub-keys are expanded from a fresh 32-byte media key with HKDF-SHA256
// keyed by the media purpose, the plaintext is encrypted with AES-256-CBC,
// and an HMAC-SHA256 over IV‖ciphertext is truncated to its first 10 bytes
// and appended to the ciphertext. The companion digests a recipient needs to
// fetch and verify the blob (fileSha256 over the plaintext, fileEncSha256
// over ciphertext-then-mac as one running hash) are returned alongside.
//
// Example:
//
//	res, err := mediacrypt.Encrypt(payload, mediacrypt.PurposeImage)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// res.Data is safe to hand to an untrusted media host.
//
//	plain, err := mediacrypt.Decrypt(res.Data, res.MediaKey, mediacrypt.PurposeImage)
package mediacrypt
