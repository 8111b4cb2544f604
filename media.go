package wirechat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/mediacrypt"
	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/wire"
)

// UploadResult is the media host's reference for one stored blob.
type UploadResult struct {
	URL        string
	DirectPath string
}

// Uploader stores an encrypted media stream on a content host. The
// engine hands it the already-encrypted bytes; key material never leaves
// the process.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileEncSHA256 []byte, mimeType string) (*UploadResult, error)
}

// Downloader fetches an encrypted media stream from a content host.
type Downloader interface {
	Download(ctx context.Context, url, directPath string) ([]byte, error)
}

// purposeFor maps a media content kind to its key-derivation purpose.
func purposeFor(kind message.ContentKind) (mediacrypt.Purpose, bool) {
	switch kind {
	case message.KindImage:
		return mediacrypt.PurposeImage, true
	case message.KindVideo:
		return mediacrypt.PurposeVideo, true
	case message.KindAudio:
		return mediacrypt.PurposeAudio, true
	case message.KindDocument:
		return mediacrypt.PurposeDocument, true
	default:
		return "", false
	}
}

// PrepareMediaMessage encrypts a media payload, uploads the ciphertext and
// returns a content ready to send: the attachment's remote reference plus
// all the integrity material a recipient needs to fetch and decrypt it.
func (c *Client) PrepareMediaMessage(ctx context.Context, plaintext []byte, kind message.ContentKind, mimeType, caption string) (*message.Content, error) {
	if c.uploader == nil {
		return nil, fmt.Errorf("no media uploader attached")
	}
	purpose, ok := purposeFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedMedia, kind)
	}
	if err := limits.ValidateMediaPayload(plaintext); err != nil {
		return nil, err
	}

	result, err := mediacrypt.Encrypt(plaintext, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt media: %w", err)
	}

	uploaded, err := c.uploader.Upload(ctx, result.Data, result.FileEncSHA256, mimeType)
	if err != nil {
		return nil, err
	}

	media := &message.MediaContent{
		URL:           uploaded.URL,
		DirectPath:    uploaded.DirectPath,
		MediaKey:      result.MediaKey,
		FileEncSHA256: result.FileEncSHA256,
		FileSHA256:    result.FileSHA256,
		FileLength:    result.FileLength,
		MimeType:      mimeType,
		Caption:       caption,
	}

	content := &message.Content{}
	switch kind {
	case message.KindImage:
		content.Image = media
	case message.KindVideo:
		content.Video = media
	case message.KindAudio:
		content.Audio = media
	case message.KindDocument:
		content.Document = media
	}
	return content, nil
}

// DownloadMediaMessage fetches and decrypts the attachment of one message.
// The ciphertext's integrity is verified before decryption, and the
// decrypted plaintext is checked against the sender's declared digest.
func (c *Client) DownloadMediaMessage(ctx context.Context, msg *message.Message) ([]byte, error) {
	if c.downloader == nil {
		return nil, fmt.Errorf("no media downloader attached")
	}

	media, kind := msg.Content.Media()
	if media == nil {
		return nil, ErrUnsupportedMedia
	}
	purpose, ok := purposeFor(kind)
	if !ok {
		return nil, ErrUnsupportedMedia
	}

	data, err := c.downloader.Download(ctx, media.URL, media.DirectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}

	plaintext, err := mediacrypt.Decrypt(data, media.MediaKey, purpose)
	if err != nil {
		return nil, err
	}

	if len(media.FileSHA256) > 0 {
		digest := sha256.Sum256(plaintext)
		if !bytes.Equal(digest[:], media.FileSHA256) {
			return nil, fmt.Errorf("%w: plaintext digest mismatch", mediacrypt.ErrIntegrity)
		}
	}
	return plaintext, nil
}

// MediaRetryResult is the decoded outcome of a media retry notification:
// fresh key ciphertext on success, nothing on a status-coded rejection.
type MediaRetryResult struct {
	Key        message.Key
	Ciphertext []byte
	IV         []byte
}

// DecodeMediaRetryNode decodes one mediaretry notification. A rejection
// surfaces as a MediaRetryError carrying the peer's status code.
func DecodeMediaRetryNode(node *wire.Node) (*MediaRetryResult, error) {
	rmr := node.GetChild("rmr")
	if rmr == nil {
		return nil, fmt.Errorf("media retry node carries no rmr child")
	}

	jid, err := rmr.AttrString("jid")
	if err != nil {
		return nil, err
	}
	id, err := rmr.AttrString("id")
	if err != nil {
		return nil, err
	}

	result := &MediaRetryResult{
		Key: message.Key{
			RemoteJID:   jid,
			FromMe:      rmr.AttrOr("from_me", "false") == "true",
			ID:          id,
			Participant: rmr.AttrOr("participant", ""),
		},
	}

	if errNode := node.GetChild("error"); errNode != nil {
		code, err := errNode.AttrUint32("code")
		if err != nil {
			return nil, err
		}
		return nil, &MediaRetryError{StatusCode: int(code)}
	}

	encrypt := node.GetChild("encrypt")
	if encrypt == nil {
		return nil, fmt.Errorf("media retry node carries neither error nor encrypt child")
	}
	result.Ciphertext = encrypt.ChildBytes("enc_p")
	result.IV = encrypt.ChildBytes("enc_iv")
	if result.Ciphertext == nil || result.IV == nil {
		return nil, fmt.Errorf("media retry encrypt child is incomplete")
	}
	return result, nil
}
