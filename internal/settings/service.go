package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

// ReservedPrefix marks keys owned by the host itself. They are never
// auto-namespaced with an extension slug.
const ReservedPrefix = "core."

// enabledKey is the reserved flag behind SetEnabled/IsEnabled.
const enabledKey = "core.enabled"

// Store is the persistence the service needs, satisfied by store.Store.
type Store interface {
	PutSetting(ctx context.Context, extension, tenant, key, payload string) error
	GetSetting(ctx context.Context, extension, tenant, key string) (string, bool, error)
	ListSettings(ctx context.Context, extension, tenant string) (map[string]string, error)
}

// Envelope wraps every stored value with the flags needed to unpack it.
type Envelope struct {
	Value      string    `json:"value"`
	Encrypted  bool      `json:"encrypted"`
	Serialized bool      `json:"serialized"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status is the summary returned by Service.Status.
type Status struct {
	Enabled  bool
	Settings map[string]any
}

// Service is the per-(extension, tenant) namespaced key/value store with
// optional at-rest encryption. A nil sealer disables encryption; plain
// writes still work.
type Service struct {
	store  Store
	sealer *Sealer
}

// NewService builds a settings service. sealer may be nil when no settings
// key is configured.
func NewService(store Store, sealer *Sealer) *Service {
	return &Service{store: store, sealer: sealer}
}

// Set stores one value for (extension, tenant, key). Non-scalar values are
// JSON-encoded and flagged serialized; scalar values are stored in their
// plain string form. With encrypt, the (possibly serialized) value is
// sealed before it is written.
func (s *Service) Set(ctx context.Context, extension, tenant, key string, value any, encrypt bool) error {
	if s == nil || s.store == nil {
		return exterrors.NewRuntimeError("settings.set", extension, "settings store is not configured", nil)
	}

	text, serialized, err := flatten(value)
	if err != nil {
		return exterrors.NewRuntimeError("settings.set", extension, "serialize value for key "+key, err)
	}

	if encrypt {
		sealed, err := s.sealer.Seal(text)
		if err != nil {
			return err
		}
		text = sealed
	}

	envelope := Envelope{
		Value:      text,
		Encrypted:  encrypt,
		Serialized: serialized,
		UpdatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return exterrors.NewRuntimeError("settings.set", extension, "encode envelope for key "+key, err)
	}

	return s.store.PutSetting(ctx, extension, tenant, namespaceKey(extension, key), string(payload))
}

// Get reads one value for (extension, tenant, key). A miss on the
// namespaced key retries the bare key once, for data written before
// namespacing existed. The boolean reports whether any row was found.
func (s *Service) Get(ctx context.Context, extension, tenant, key string) (any, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, exterrors.NewRuntimeError("settings.get", extension, "settings store is not configured", nil)
	}

	payload, ok, err := s.store.GetSetting(ctx, extension, tenant, namespaceKey(extension, key))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		payload, ok, err = s.store.GetSetting(ctx, extension, tenant, key)
		if err != nil || !ok {
			return nil, false, err
		}
	}

	value, err := s.unpack(payload)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// SetEnabled flips the reserved per-tenant enablement flag.
func (s *Service) SetEnabled(ctx context.Context, extension, tenant string, enabled bool) error {
	return s.Set(ctx, extension, tenant, enabledKey, enabled, false)
}

// IsEnabled reports the per-tenant enablement flag. No settings row means
// disabled.
func (s *Service) IsEnabled(ctx context.Context, extension, tenant string) (bool, error) {
	value, ok, err := s.Get(ctx, extension, tenant, enabledKey)
	if err != nil || !ok {
		return false, err
	}
	return isTruthy(value), nil
}

// Status returns the enablement flag together with every other setting for
// the (extension, tenant) pair, with the reserved flag stripped from the
// settings map.
func (s *Service) Status(ctx context.Context, extension, tenant string) (Status, error) {
	if s == nil || s.store == nil {
		return Status{}, exterrors.NewRuntimeError("settings.status", extension, "settings store is not configured", nil)
	}

	rows, err := s.store.ListSettings(ctx, extension, tenant)
	if err != nil {
		return Status{}, err
	}

	status := Status{Settings: make(map[string]any, len(rows))}
	for key, payload := range rows {
		value, err := s.unpack(payload)
		if err != nil {
			return Status{}, err
		}
		if key == enabledKey {
			status.Enabled = isTruthy(value)
			continue
		}
		status.Settings[key] = value
	}
	return status, nil
}

// unpack reverses Set: decrypt first, then deserialize.
func (s *Service) unpack(payload string) (any, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, exterrors.NewRuntimeError("settings.unpack", "", "malformed settings envelope", err)
	}

	text := envelope.Value
	if envelope.Encrypted {
		opened, err := s.sealer.Open(text)
		if err != nil {
			return nil, err
		}
		text = opened
	}

	if !envelope.Serialized {
		return text, nil
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, exterrors.NewRuntimeError("settings.unpack", "", "malformed serialized value", err)
	}
	return value, nil
}

// namespaceKey prefixes a bare key with the extension slug. Reserved core
// keys and keys already namespaced pass through unchanged.
func namespaceKey(extension, key string) string {
	if strings.HasPrefix(key, ReservedPrefix) {
		return key
	}
	if strings.HasPrefix(key, extension+".") {
		return key
	}
	return extension + "." + key
}

// flatten renders a value for storage. Scalars keep their plain string
// form; anything else is JSON-encoded and flagged serialized.
func flatten(value any) (string, bool, error) {
	switch v := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, false, nil
	case bool:
		if v {
			return "1", false, nil
		}
		return "0", false, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), false, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false, err
		}
		return string(encoded), true, nil
	}
}

func isTruthy(value any) bool {
	switch v := value.(type) {
	case string:
		return v == "1" || v == "true"
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}
