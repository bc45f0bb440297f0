package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/storage"
	"github.com/wedosoft/project-a/internal/types"
)

// ErrSettingNotFound is returned for unknown setting keys.
var ErrSettingNotFound = errors.New("tenant setting not found")

// Settings provides lazily loaded, decrypted access to one tenant's
// settings. The full set is fetched on first read and cached for the life
// of the value, which matches its per-request scope.
type Settings struct {
	store    storage.Store
	crypto   *Crypto
	tenantID string

	mu     sync.Mutex
	values map[string]string
	loaded bool
}

// NewSettings creates a settings view for the tenant. crypto may be nil when
// no encrypted settings exist.
func NewSettings(store storage.Store, crypto *Crypto, tenantID string) *Settings {
	return &Settings{store: store, crypto: crypto, tenantID: tenantID}
}

func (s *Settings) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	rows, err := s.store.ListTenantSettings(ctx, s.tenantID)
	if err != nil {
		return err
	}
	s.values = make(map[string]string, len(rows))
	for _, row := range rows {
		value := row.Value
		if row.IsEncrypted {
			if s.crypto == nil {
				return apperr.New(apperr.KindConfiguration, "tenant",
					"encrypted setting present but no master key loaded")
			}
			value, err = s.crypto.Decrypt(row.Value)
			if err != nil {
				return err
			}
		}
		s.values[row.Key] = value
	}
	s.loaded = true
	return nil
}

// Get returns the decrypted value of one setting.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return "", err
	}
	value, ok := s.values[key]
	if !ok {
		return "", apperr.Wrap(apperr.KindNotFound, "tenant", key, ErrSettingNotFound)
	}
	return value, nil
}

// GetDefault returns the setting or fallback when absent.
func (s *Settings) GetDefault(ctx context.Context, key, fallback string) (string, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, ErrSettingNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set writes a setting, encrypting the value at rest when encrypt is true,
// and updates the cached view.
func (s *Settings) Set(ctx context.Context, key, value string, encrypt bool) error {
	stored := value
	if encrypt {
		if s.crypto == nil {
			return apperr.New(apperr.KindConfiguration, "tenant",
				"cannot encrypt setting without a master key")
		}
		var err error
		stored, err = s.crypto.Encrypt(value)
		if err != nil {
			return err
		}
	}

	err := s.store.SetTenantSetting(ctx, &types.TenantSetting{
		TenantID:    s.tenantID,
		Key:         key,
		Value:       stored,
		IsEncrypted: encrypt,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values != nil {
		s.values[key] = value
	}
	return nil
}
