package storage

import (
	"errors"
	"time"

	"github.com/BinJu/train/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a record whose key is taken
	ErrExists = errors.New("already exists")
	// ErrExhausted is returned when nothing is left to claim or acquire
	ErrExhausted = errors.New("exhausted")
)

// Store defines the interface for persistent artifact state. Every method is
// atomic on its own; no method spans more than one artifact.
type Store interface {
	// Artifacts
	CreateArtifact(art *types.Artifact) error
	GetArtifact(id string) (*types.Artifact, error)
	ListArtifactIDs() ([]string, error)
	ListArtifacts() ([]*types.Artifact, error)
	UpdateArtifact(art *types.Artifact) error
	// UpdateRolloutStatus changes one rollout's status. A zero scheduled time
	// leaves LastScheduled untouched.
	UpdateRolloutStatus(id string, kind types.RolloutKind, status types.RolloutStatus, scheduled time.Time) error
	DeleteArtifact(id string) error

	// Instances
	CreateInstance(inst *types.Instance) error
	GetInstance(instID, artID string) (*types.Instance, error)
	ListInstances(artID string) ([]*types.Instance, error)
	UpdateInstance(inst *types.Instance) error
	DeleteInstance(instID, artID string) error
	// ClaimInstance marks the oldest clean succeeded build instance dirty
	// and returns it, or ErrExhausted if there is none.
	ClaimInstance(artID string) (*types.Instance, error)
	// ReleaseInstance undoes a claim whose consumer never used the instance
	ReleaseInstance(instID, artID string) error

	// Secrets
	CreateSecret(secret *types.Secret) error
	GetSecretByName(name string) (*types.Secret, error)
	ListSecrets() ([]*types.Secret, error)
	DeleteSecret(id string) error

	// Accounts
	CreateAccount(account *types.Account) error
	GetAccountByName(name string) (*types.Account, error)
	ListAccounts() ([]*types.Account, error)
	// AcquireAccount takes one unit of stock, or returns ErrExhausted
	AcquireAccount(name string) (*types.Account, error)
	ReleaseAccount(name string) error
	DeleteAccount(id string) error

	// Utility
	Close() error
}
