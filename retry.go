package wirechat

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/wire"
)

// keyBundleType marks the key-bundle format version in retry key material.
var keyBundleType = []byte{5}

// sendRetryRequest asks the sender to re-encrypt a message this client
// failed to decrypt. Retry counters are keyed by message id and capped:
// once the ceiling is reached the counter is dropped and no further retry
// is sent, leaving delivery to the sender's own phash resend logic.
//
// The second and later retries for an id, or any retry where forceKeys is
// set, additionally carry a fresh key bundle so the sender can establish a
// new session. The consumed pre-key is marked used and a credentials
// update is emitted so the mutation gets persisted.
func (c *Client) sendRetryRequest(ctx context.Context, node *wire.Node, forceKeys bool) error {
	msgID, err := node.AttrString("id")
	if err != nil {
		return err
	}
	from, err := node.AttrString("from")
	if err != nil {
		return err
	}

	count := c.retries[msgID]
	if count >= limits.RetryCeiling {
		delete(c.retries, msgID)
		logrus.WithFields(logrus.Fields{
			"function": "sendRetryRequest",
			"id":       msgID,
			"count":    count,
		}).Warn("Retry ceiling reached, giving up on message")
		return nil
	}
	count++
	c.retries[msgID] = count

	creds := c.creds.Credentials()

	retry := wire.NewNode("retry", wire.Attrs{
		"count": strconv.Itoa(count),
		"id":    msgID,
		"v":     limits.RetryVersion,
	})
	if t, ok := node.Attr("t"); ok {
		retry.SetAttr("t", t)
	}

	children := []*wire.Node{
		retry,
		wire.NewDataNode("registration", nil, encodeBigEndian(creds.RegistrationID, 4)),
	}

	if count > 1 || forceKeys {
		keys, err := c.retryKeyBundle()
		if err != nil {
			return err
		}
		children = append(children, keys)
	}

	receipt := wire.NewNode("receipt", wire.Attrs{
		"id":   msgID,
		"type": "retry",
		"to":   from,
	}, children...)

	if participant, ok := node.Attr("participant"); ok {
		receipt.SetAttr("participant", participant)
	}
	if recipient, ok := node.Attr("recipient"); ok {
		receipt.SetAttr("recipient", recipient)
	}

	if err := c.sendNode(ctx, receipt); err != nil {
		return fmt.Errorf("failed to send retry receipt for %s: %w", msgID, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "sendRetryRequest",
		"id":       msgID,
		"count":    count,
		"withKeys": count > 1 || forceKeys,
	}).Info("Sent retry request")
	return nil
}

// retryKeyBundle assembles the keys child of a retry receipt: bundle type
// marker, identity key, one fresh pre-key, the signed pre-key and the
// device identity certificate.
func (c *Client) retryKeyBundle() (*wire.Node, error) {
	preKeys, err := c.creds.NextPreKeys(1)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate retry pre-key: %w", err)
	}

	creds := c.creds.Credentials()
	c.events.emitCredentialsUpdate(creds)

	preKey := preKeys[0]
	signed := creds.SignedPreKey

	keys := wire.NewNode("keys", nil,
		wire.NewDataNode("type", nil, keyBundleType),
		wire.NewDataNode("identity", nil, creds.SignedIdentityKey.Public),
		wire.NewNode("key", nil,
			wire.NewDataNode("id", nil, encodeBigEndian(preKey.KeyID, 3)),
			wire.NewDataNode("value", nil, preKey.Public),
		),
		wire.NewNode("skey", nil,
			wire.NewDataNode("id", nil, encodeBigEndian(signed.KeyID, 3)),
			wire.NewDataNode("value", nil, signed.Public),
			wire.NewDataNode("signature", nil, signed.Signature),
		),
		wire.NewDataNode("device-identity", nil, creds.DeviceIdentity),
	)
	return keys, nil
}

// clearRetry drops the retry counter for a message that arrived intact.
func (c *Client) clearRetry(msgID string) {
	delete(c.retries, msgID)
}

// uploadPreKeys pushes a batch of fresh pre-keys to the server, invoked
// when the server reports the available count fell below the low-water
// mark. Uploads are rate limited so a notification storm cannot flood the
// credentials endpoint.
func (c *Client) uploadPreKeys(ctx context.Context) error {
	if !c.prekeyUploads.Allow() {
		logrus.WithFields(logrus.Fields{
			"function": "uploadPreKeys",
		}).Debug("Pre-key upload suppressed by rate limit")
		return nil
	}

	preKeys, err := c.creds.NextPreKeys(limits.PreKeyUploadBatch)
	if err != nil {
		return fmt.Errorf("failed to allocate pre-key batch: %w", err)
	}

	creds := c.creds.Credentials()

	keyNodes := make([]*wire.Node, 0, len(preKeys))
	for _, pk := range preKeys {
		keyNodes = append(keyNodes, wire.NewNode("key", nil,
			wire.NewDataNode("id", nil, encodeBigEndian(pk.KeyID, 3)),
			wire.NewDataNode("value", nil, pk.Public),
		))
	}

	signed := creds.SignedPreKey
	iq := wire.NewNode("iq", wire.Attrs{
		"xmlns": "encrypt",
		"type":  "set",
		"to":    wire.ServerJID,
	},
		wire.NewDataNode("registration", nil, encodeBigEndian(creds.RegistrationID, 4)),
		wire.NewDataNode("type", nil, keyBundleType),
		wire.NewDataNode("identity", nil, creds.SignedIdentityKey.Public),
		wire.NewNode("list", nil, keyNodes...),
		wire.NewNode("skey", nil,
			wire.NewDataNode("id", nil, encodeBigEndian(signed.KeyID, 3)),
			wire.NewDataNode("value", nil, signed.Public),
			wire.NewDataNode("signature", nil, signed.Signature),
		),
	)

	if err := c.sendNode(ctx, iq); err != nil {
		return fmt.Errorf("failed to upload pre-keys: %w", err)
	}

	c.events.emitCredentialsUpdate(creds)

	logrus.WithFields(logrus.Fields{
		"function": "uploadPreKeys",
		"count":    len(preKeys),
	}).Info("Uploaded pre-key batch")
	return nil
}

// encodeBigEndian renders value as a fixed-width big-endian byte string.
func encodeBigEndian(value uint32, width int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return buf[4-width:]
}
