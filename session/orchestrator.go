package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeviceCiphertext is one successful per-device encryption.
type DeviceCiphertext struct {
	JID        string
	Ciphertext *Ciphertext
}

// DeviceError records one failed device during a fan-out. A failed device
// never blocks delivery to the others.
type DeviceError struct {
	JID string
	Err error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.JID, e.Err)
}

// Orchestrator wraps a Store with the engine's session policy: session
// assertion, forced re-establishment, device-list fan-out and cause-tagged
// decryption. The device cache lives for the orchestrator's lifetime and is
// only read or written under the engine's processing lock.
type Orchestrator struct {
	store   Store
	devices DeviceLister

	mu          sync.Mutex
	deviceCache map[string][]string
}

// NewOrchestrator creates an orchestrator over the given session store and
// device-list source.
func NewOrchestrator(store Store, devices DeviceLister) *Orchestrator {
	return &Orchestrator{
		store:       store,
		devices:     devices,
		deviceCache: make(map[string][]string),
	}
}

// AssertSessions ensures a usable session exists for every given device
// jid, creating sessions where absent. With force set, existing sessions
// are replaced; the retry protocol uses this after a peer signals a failed
// decrypt. Per-device failures are joined into the returned error.
func (o *Orchestrator) AssertSessions(ctx context.Context, jids []string, force bool) error {
	var errs []error
	for _, jid := range jids {
		if !force {
			exists, err := o.store.HasSession(ctx, jid)
			if err != nil {
				errs = append(errs, fmt.Errorf("session lookup for %s: %w", jid, err))
				continue
			}
			if exists {
				continue
			}
		}
		if err := o.store.CreateSession(ctx, jid); err != nil {
			errs = append(errs, fmt.Errorf("session setup for %s: %w", jid, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// UserDevices resolves the device list for the given user jids. With
// useCache set, a previous resolution is reused; the phash resend path
// passes false to force a fresh device-list fan-out.
func (o *Orchestrator) UserDevices(ctx context.Context, jids []string, useCache bool) ([]string, error) {
	cacheKey := fmt.Sprint(jids)

	if useCache {
		o.mu.Lock()
		cached, ok := o.deviceCache[cacheKey]
		o.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	devices, err := o.devices.UserDevices(ctx, jids)
	if err != nil {
		return nil, fmt.Errorf("device list query: %w", err)
	}

	o.mu.Lock()
	o.deviceCache[cacheKey] = devices
	o.mu.Unlock()

	return devices, nil
}

// EncryptForDevices encrypts plaintext for every given device jid. Devices
// that fail are recorded and skipped; successes are always returned so one
// unreachable device cannot block delivery to the rest.
func (o *Orchestrator) EncryptForDevices(ctx context.Context, jids []string, plaintext []byte) ([]DeviceCiphertext, []DeviceError) {
	var (
		encrypted []DeviceCiphertext
		failed    []DeviceError
	)

	for _, jid := range jids {
		ct, err := o.store.Encrypt(ctx, jid, plaintext)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "EncryptForDevices",
				"jid":      jid,
				"error":    err.Error(),
			}).Warn("Skipping device after encryption failure")
			failed = append(failed, DeviceError{JID: jid, Err: err})
			continue
		}
		encrypted = append(encrypted, DeviceCiphertext{JID: jid, Ciphertext: ct})
	}

	return encrypted, failed
}

// Decrypt decrypts one inbound ciphertext from the given sender device.
// Failures surface as *DecryptError so callers can branch on the cause;
// store errors that are not already cause-tagged are wrapped as unknown.
func (o *Orchestrator) Decrypt(ctx context.Context, jid string, ct *Ciphertext) ([]byte, error) {
	plaintext, err := o.store.Decrypt(ctx, jid, ct)
	if err != nil {
		var de *DecryptError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecryptError{JID: jid, Cause: CauseUnknown, Err: err}
	}
	return plaintext, nil
}
