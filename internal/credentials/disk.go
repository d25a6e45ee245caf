package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/peterbourgon/diskv/v3"
)

type diskEntry struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (e diskEntry) options() models.SetOptions {
	if e.ExpiresAt == nil {
		return models.SetOptions{}
	}
	return models.SetOptions{ExpiresAt: *e.ExpiresAt}
}

// DiskStore persists credentials as one small JSON file per key. It is the cookie jar of the CLI.
type DiskStore struct {
	dv        *diskv.Diskv
	clock     clockwork.Clock
	encryptor models.Encryptor
}

type DiskStoreOption func(*DiskStore)

func WithDiskClock(clock clockwork.Clock) DiskStoreOption {
	return func(d *DiskStore) {
		d.clock = clock
	}
}

func WithDiskEncryptor(encryptor models.Encryptor) DiskStoreOption {
	return func(d *DiskStore) {
		d.encryptor = encryptor
	}
}

func NewDiskStore(basePath string, options ...DiskStoreOption) (*DiskStore, error) {
	if basePath == "" {
		return nil, errors.New("the disk store requires a base path")
	}
	store := DiskStore{
		dv: diskv.New(diskv.Options{
			BasePath:     basePath,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 0,
			PathPerm:     0o700,
			FilePerm:     0o600,
		}),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(&store)
	}
	return &store, nil
}

func (d *DiskStore) Get(_ context.Context, key models.CredentialKey) (string, error) {
	raw, err := d.dv.Read(string(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", gwerrors.ErrCredentialNotFound
		}
		return "", err
	}
	var entry diskEntry
	err = json.Unmarshal(raw, &entry)
	if err != nil {
		return "", err
	}
	if entry.options().Expired(d.clock.Now()) {
		return "", gwerrors.ErrCredentialNotFound
	}
	if d.encryptor == nil {
		return entry.Value, nil
	}
	return d.encryptor.Decrypt(entry.Value)
}

func (d *DiskStore) Set(_ context.Context, key models.CredentialKey, value string, opts models.SetOptions) error {
	err := key.Validate()
	if err != nil {
		return err
	}
	if d.encryptor != nil {
		value, err = d.encryptor.Encrypt(value)
		if err != nil {
			return err
		}
	}
	entry := diskEntry{Value: value}
	if !opts.ExpiresAt.IsZero() {
		expiresAt := opts.ExpiresAt
		entry.ExpiresAt = &expiresAt
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return d.dv.Write(string(key), raw)
}

func (d *DiskStore) Remove(_ context.Context, key models.CredentialKey) error {
	err := d.dv.Erase(string(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// eraseAll deletes the whole directory of the store.
func (d *DiskStore) eraseAll() error {
	return d.dv.EraseAll()
}
