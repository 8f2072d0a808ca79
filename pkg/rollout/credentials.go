package rollout

import (
	"context"
	"errors"
	"fmt"

	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/security"
	"github.com/BinJu/train/pkg/storage"
	"github.com/BinJu/train/pkg/types"
)

// Credentials resolves the named dependencies of a rollout into plaintext
// key-value data ready to be mounted into a run.
type Credentials interface {
	// Secret returns a vault secret. A missing secret is a plain error.
	Secret(ctx context.Context, name string) (map[string]string, error)

	// Account takes one unit from an account pool. It wraps
	// types.ErrPendingAccount when the pool is empty or unknown.
	Account(ctx context.Context, name string) (map[string]string, error)

	// ReleaseAccount gives a unit back to the pool
	ReleaseAccount(ctx context.Context, name string) error

	// ArtifactRef claims a clean instance of another artifact and returns its
	// results plus the art_id and inst_id keys naming the claimed instance.
	// It wraps types.ErrPendingArtRef when none is ready.
	ArtifactRef(ctx context.Context, artID string) (map[string]string, error)

	// ReleaseArtifactRef returns a claimed instance to its pool
	ReleaseArtifactRef(ctx context.Context, artID, instID string) error
}

// Enqueuer asks the scheduler to look at an artifact again
type Enqueuer interface {
	Enqueue(ctx context.Context, artID string) error
}

// Vault is the Store-backed Credentials implementation
type Vault struct {
	store   storage.Store
	secrets *security.SecretsManager
	queue   Enqueuer
}

// NewVault creates a Vault
func NewVault(store storage.Store, secrets *security.SecretsManager, queue Enqueuer) *Vault {
	return &Vault{store: store, secrets: secrets, queue: queue}
}

func (v *Vault) Secret(_ context.Context, name string) (map[string]string, error) {
	secret, err := v.store.GetSecretByName(name)
	if err != nil {
		return nil, err
	}
	return v.secrets.SecretData(secret)
}

func (v *Vault) Account(_ context.Context, name string) (map[string]string, error) {
	acct, err := v.store.AcquireAccount(name)
	if errors.Is(err, storage.ErrExhausted) || errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("account %s: %w", name, types.ErrPendingAccount)
	}
	if err != nil {
		return nil, err
	}

	data, err := v.secrets.AccountData(acct)
	if err != nil {
		_ = v.store.ReleaseAccount(name)
		return nil, err
	}
	return data, nil
}

func (v *Vault) ReleaseAccount(_ context.Context, name string) error {
	return v.store.ReleaseAccount(name)
}

// ArtifactRef claims a clean instance of artID. Either way the referenced
// artifact is enqueued: a claim leaves its pool one short, a miss means the
// pool is empty.
func (v *Vault) ArtifactRef(ctx context.Context, artID string) (map[string]string, error) {
	inst, err := v.store.ClaimInstance(artID)
	if qerr := v.queue.Enqueue(ctx, artID); qerr != nil {
		logger := log.WithArtifactID(artID)
		logger.Warn().Err(qerr).Msg("Failed to enqueue referenced artifact")
	}
	if errors.Is(err, storage.ErrExhausted) {
		return nil, fmt.Errorf("artifact ref %s: %w", artID, types.ErrPendingArtRef)
	}
	if err != nil {
		return nil, err
	}

	data := make(map[string]string, len(inst.Results)+2)
	for k, v := range inst.Results {
		data[k] = v
	}
	data[ParamArtifactID] = artID
	data[ParamInstanceID] = inst.ID
	return data, nil
}

func (v *Vault) ReleaseArtifactRef(_ context.Context, artID, instID string) error {
	return v.store.ReleaseInstance(instID, artID)
}
