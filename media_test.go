package wirechat

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/wirechat/mediacrypt"
	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/wire"
)

// fakeMediaHost stores uploaded blobs in memory, keyed by a counter-derived
// URL, and serves them back for download.
type fakeMediaHost struct {
	blobs map[string][]byte
}

func newFakeMediaHost() *fakeMediaHost {
	return &fakeMediaHost{blobs: make(map[string][]byte)}
}

func (h *fakeMediaHost) Upload(_ context.Context, data []byte, _ []byte, _ string) (*UploadResult, error) {
	url := fmt.Sprintf("https://media.test/%d", len(h.blobs))
	h.blobs[url] = data
	return &UploadResult{URL: url, DirectPath: "/v/" + url}, nil
}

func (h *fakeMediaHost) Download(_ context.Context, url, _ string) ([]byte, error) {
	blob, ok := h.blobs[url]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", url)
	}
	return blob, nil
}

func newMediaClient(t *testing.T) (*Client, *fakeMediaHost) {
	t.Helper()
	client, _ := newTestClient(t, newFakeSessions())
	host := newFakeMediaHost()
	client.uploader = host
	client.downloader = host
	return client, host
}

func TestMediaUploadDownloadRoundTrip(t *testing.T) {
	client, host := newMediaClient(t)
	plaintext := bytes.Repeat([]byte("media payload "), 1024)

	content, err := client.PrepareMediaMessage(context.Background(), plaintext,
		message.KindImage, "image/jpeg", "a caption")
	require.NoError(t, err)

	require.NotNil(t, content.Image)
	assert.Len(t, content.Image.MediaKey, 32)
	assert.Len(t, content.Image.FileSHA256, 32)
	assert.Len(t, content.Image.FileEncSHA256, 32)
	assert.Equal(t, uint64(len(plaintext)), content.Image.FileLength)
	assert.Equal(t, "a caption", content.Image.Caption)

	t.Run("HostHoldsOnlyCiphertext", func(t *testing.T) {
		blob := host.blobs[content.Image.URL]
		require.NotEmpty(t, blob)
		assert.NotContains(t, string(blob), "media payload")
	})

	t.Run("DownloadRecoversPlaintext", func(t *testing.T) {
		msg := &message.Message{Content: content}
		got, err := client.DownloadMediaMessage(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	})

	t.Run("TamperedBlobFailsIntegrity", func(t *testing.T) {
		host.blobs[content.Image.URL][5] ^= 0x01
		msg := &message.Message{Content: content}
		_, err := client.DownloadMediaMessage(context.Background(), msg)
		assert.ErrorIs(t, err, mediacrypt.ErrIntegrity)
		host.blobs[content.Image.URL][5] ^= 0x01
	})
}

func TestDownloadMediaMessageUnsupported(t *testing.T) {
	client, _ := newMediaClient(t)

	t.Run("TextMessage", func(t *testing.T) {
		msg := &message.Message{Content: message.NewText("not media")}
		_, err := client.DownloadMediaMessage(context.Background(), msg)
		assert.ErrorIs(t, err, ErrUnsupportedMedia)
	})

	t.Run("EmptyMessage", func(t *testing.T) {
		msg := &message.Message{}
		_, err := client.DownloadMediaMessage(context.Background(), msg)
		assert.ErrorIs(t, err, ErrUnsupportedMedia)
	})
}

func TestPrepareMediaMessageValidation(t *testing.T) {
	client, _ := newMediaClient(t)

	t.Run("EmptyPayload", func(t *testing.T) {
		_, err := client.PrepareMediaMessage(context.Background(), nil,
			message.KindImage, "image/jpeg", "")
		assert.Error(t, err)
	})

	t.Run("NonMediaKind", func(t *testing.T) {
		_, err := client.PrepareMediaMessage(context.Background(), []byte("x"),
			message.KindText, "text/plain", "")
		assert.ErrorIs(t, err, ErrUnsupportedMedia)
	})
}

func TestDecodeMediaRetryNode(t *testing.T) {
	rmr := func() *wire.Node {
		return wire.NewNode("rmr", wire.Attrs{
			"jid":     testFriendJID,
			"id":      "M1",
			"from_me": "true",
		})
	}

	t.Run("SuccessCarriesFreshKeyMaterial", func(t *testing.T) {
		node := wire.NewNode("notification", wire.Attrs{"type": "mediaretry"},
			rmr(),
			wire.NewNode("encrypt", nil,
				wire.NewDataNode("enc_p", nil, []byte{1, 2, 3}),
				wire.NewDataNode("enc_iv", nil, []byte{4, 5, 6}),
			),
		)
		result, err := DecodeMediaRetryNode(node)
		require.NoError(t, err)
		assert.Equal(t, testFriendJID, result.Key.RemoteJID)
		assert.True(t, result.Key.FromMe)
		assert.Equal(t, []byte{1, 2, 3}, result.Ciphertext)
		assert.Equal(t, []byte{4, 5, 6}, result.IV)
	})

	t.Run("RejectionCarriesStatusCode", func(t *testing.T) {
		node := wire.NewNode("notification", wire.Attrs{"type": "mediaretry"},
			rmr(),
			wire.NewNode("error", wire.Attrs{"code": "404"}),
		)
		_, err := DecodeMediaRetryNode(node)
		var retryErr *MediaRetryError
		require.ErrorAs(t, err, &retryErr)
		assert.Equal(t, 404, retryErr.StatusCode)
	})

	t.Run("MissingRmrChildFails", func(t *testing.T) {
		node := wire.NewNode("notification", wire.Attrs{"type": "mediaretry"})
		_, err := DecodeMediaRetryNode(node)
		assert.Error(t, err)
	})
}
