package mediacrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/wirechat/limits"
)

// Purpose selects the HKDF expansion domain for a media key. Each purpose
// derives a distinct sub-key set from the same media key material.
type Purpose string

const (
	PurposeImage         Purpose = "image"
	PurposeVideo         Purpose = "video"
	PurposeAudio         Purpose = "audio"
	PurposeDocument      Purpose = "document"
	PurposeThumbnailLink Purpose = "thumbnail-link"
)

// hkdfInfo maps a purpose to the expansion label fixed by the wire protocol.
var hkdfInfo = map[Purpose]string{
	PurposeImage:         "WhatsApp Image Keys",
	PurposeVideo:         "WhatsApp Video Keys",
	PurposeAudio:         "WhatsApp Audio Keys",
	PurposeDocument:      "WhatsApp Document Keys",
	PurposeThumbnailLink: "WhatsApp Link Thumbnail Keys",
}

var (
	// ErrIntegrity indicates the appended MAC does not authenticate the
	// downloaded ciphertext. The download fails; it is not retried
	// automatically.
	ErrIntegrity = errors.New("media integrity check failed")

	// ErrUnknownPurpose indicates a purpose with no registered expansion
	// label.
	ErrUnknownPurpose = errors.New("unknown media purpose")
)

// Keys is the sub-key set expanded from a media key.
type Keys struct {
	IV        []byte // 16 bytes, CBC initialization vector
	CipherKey []byte // 32 bytes, AES-256 key
	MACKey    []byte // 32 bytes, HMAC-SHA256 key
	RefKey    []byte // 32 bytes, reserved reference key
}

// EncryptResult is the outcome of encrypting one media payload. It is
// produced once per upload and consumed immediately by the uploader.
type EncryptResult struct {
	// Data is the byte stream to store on the media host: ciphertext‖mac.
	Data []byte
	// MediaKey is the fresh 32-byte key the recipient needs to decrypt.
	MediaKey []byte
	// MAC is the truncated 10-byte authentication tag (also the trailing
	// bytes of Data).
	MAC []byte
	// FileSHA256 digests the plaintext.
	FileSHA256 []byte
	// FileEncSHA256 digests ciphertext-then-mac as a single hash operation.
	FileEncSHA256 []byte
	// FileLength is the plaintext length in bytes.
	FileLength uint64
}

// DeriveKeys expands a media key into its sub-key set for the given purpose.
func DeriveKeys(mediaKey []byte, purpose Purpose) (*Keys, error) {
	if len(mediaKey) != limits.MediaKeyLength {
		return nil, fmt.Errorf("media key must be %d bytes, got %d", limits.MediaKeyLength, len(mediaKey))
	}
	info, ok := hkdfInfo[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}

	expanded := make([]byte, limits.MediaKeyExpandedLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, mediaKey, nil, []byte(info)), expanded); err != nil {
		return nil, fmt.Errorf("hkdf expansion failed: %w", err)
	}

	return &Keys{
		IV:        expanded[0:16],
		CipherKey: expanded[16:48],
		MACKey:    expanded[48:80],
		RefKey:    expanded[80:112],
	}, nil
}

// Encrypt produces a byte stream safe to store on an untrusted media host,
// plus the integrity material a recipient needs to verify and decrypt it. A
// fresh random media key is generated per call.
func Encrypt(plaintext []byte, purpose Purpose) (*EncryptResult, error) {
	mediaKey := make([]byte, limits.MediaKeyLength)
	if _, err := rand.Read(mediaKey); err != nil {
		return nil, fmt.Errorf("failed to generate media key: %w", err)
	}
	return encryptWithKey(plaintext, mediaKey, purpose)
}

func encryptWithKey(plaintext, mediaKey []byte, purpose Purpose) (*EncryptResult, error) {
	if err := limits.ValidateMediaPayload(plaintext); err != nil {
		return nil, err
	}
	keys, err := DeriveKeys(mediaKey, purpose)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keys.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, keys.IV).CryptBlocks(ciphertext, padded)

	// MAC covers IV‖ciphertext; only its first 10 bytes travel on the wire.
	mac := hmac.New(sha256.New, keys.MACKey)
	mac.Write(keys.IV)
	mac.Write(ciphertext)
	truncated := mac.Sum(nil)[:limits.MediaMACLength]

	plainDigest := sha256.Sum256(plaintext)

	// The wire contract computes this as one running hash over ciphertext
	// then mac, in that order. Do not split it into two digests.
	encHash := sha256.New()
	encHash.Write(ciphertext)
	encHash.Write(truncated)

	data := make([]byte, 0, len(ciphertext)+len(truncated))
	data = append(data, ciphertext...)
	data = append(data, truncated...)

	logrus.WithFields(logrus.Fields{
		"function":   "Encrypt",
		"purpose":    purpose,
		"plain_len":  len(plaintext),
		"stream_len": len(data),
	}).Debug("Encrypted media payload")

	return &EncryptResult{
		Data:          data,
		MediaKey:      mediaKey,
		MAC:           truncated,
		FileSHA256:    plainDigest[:],
		FileEncSHA256: encHash.Sum(nil),
		FileLength:    uint64(len(plaintext)),
	}, nil
}

// Decrypt verifies and decrypts a downloaded media stream. The trailing
// 10-byte MAC is recomputed from IV‖ciphertext and compared in constant
// time before any decryption happens; a mismatch fails with ErrIntegrity.
func Decrypt(data, mediaKey []byte, purpose Purpose) ([]byte, error) {
	if err := limits.ValidateMediaPayload(data); err != nil {
		return nil, err
	}
	if len(data) <= limits.MediaMACLength {
		return nil, fmt.Errorf("%w: stream shorter than mac", ErrIntegrity)
	}
	keys, err := DeriveKeys(mediaKey, purpose)
	if err != nil {
		return nil, err
	}

	ciphertext := data[:len(data)-limits.MediaMACLength]
	tag := data[len(data)-limits.MediaMACLength:]

	mac := hmac.New(sha256.New, keys.MACKey)
	mac.Write(keys.IV)
	mac.Write(ciphertext)
	if !hmac.Equal(tag, mac.Sum(nil)[:limits.MediaMACLength]) {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(keys.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrIntegrity)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, keys.IV).CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext, block.BlockSize())
}

// pad applies PKCS#7 padding.
func pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// unpad strips PKCS#7 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length", ErrIntegrity)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrIntegrity)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid padding", ErrIntegrity)
		}
	}
	return data[:len(data)-padLen], nil
}
