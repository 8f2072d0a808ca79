package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BinJu/train/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketArtifacts = []byte("artifacts")
	bucketInstances = []byte("instances") // one nested bucket per artifact
	bucketSecrets   = []byte("secrets")
	bucketAccounts  = []byte("accounts")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "train.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketArtifacts, bucketInstances, bucketSecrets, bucketAccounts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// Artifact operations

func (s *BoltStore) CreateArtifact(art *types.Artifact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		if b.Get([]byte(art.ID)) != nil {
			return fmt.Errorf("artifact %s: %w", art.ID, ErrExists)
		}
		return put(b, art.ID, art)
	})
}

func (s *BoltStore) GetArtifact(id string) (*types.Artifact, error) {
	var art types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &art)
	})
	if err != nil {
		return nil, err
	}
	return &art, nil
}

func (s *BoltStore) ListArtifactIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) ListArtifacts() ([]*types.Artifact, error) {
	var arts []*types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).ForEach(func(_, v []byte) error {
			var art types.Artifact
			if err := json.Unmarshal(v, &art); err != nil {
				return err
			}
			arts = append(arts, &art)
			return nil
		})
	})
	return arts, err
}

func (s *BoltStore) UpdateArtifact(art *types.Artifact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		if b.Get([]byte(art.ID)) == nil {
			return fmt.Errorf("artifact %s: %w", art.ID, ErrNotFound)
		}
		return put(b, art.ID, art)
	})
}

func (s *BoltStore) UpdateRolloutStatus(id string, kind types.RolloutKind, status types.RolloutStatus, scheduled time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		var art types.Artifact
		if err := json.Unmarshal(data, &art); err != nil {
			return err
		}

		r := art.Rollout(kind)
		if r == nil {
			r = types.NewRollout(kind, art.ID)
			if kind == types.RolloutClean {
				art.Clean = r
			} else {
				art.Build = r
			}
		}
		r.Status = status
		if !scheduled.IsZero() {
			r.LastScheduled = scheduled
		}
		return put(b, art.ID, &art)
	})
}

// DeleteArtifact removes the artifact and its instance records
func (s *BoltStore) DeleteArtifact(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		insts := tx.Bucket(bucketInstances)
		if insts.Bucket([]byte(id)) != nil {
			if err := insts.DeleteBucket([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketArtifacts).Delete([]byte(id))
	})
}

// Instance operations

func (s *BoltStore) CreateInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketInstances).CreateBucketIfNotExists([]byte(inst.ArtifactID))
		if err != nil {
			return err
		}
		if b.Get([]byte(inst.ID)) != nil {
			return fmt.Errorf("instance %s/%s: %w", inst.ArtifactID, inst.ID, ErrExists)
		}
		return put(b, inst.ID, inst)
	})
}

func (s *BoltStore) GetInstance(instID, artID string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		var data []byte
		if b := tx.Bucket(bucketInstances).Bucket([]byte(artID)); b != nil {
			data = b.Get([]byte(instID))
		}
		if data == nil {
			return fmt.Errorf("instance %s/%s: %w", artID, instID, ErrNotFound)
		}
		return json.Unmarshal(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns the artifact's instances, oldest first
func (s *BoltStore) ListInstances(artID string) ([]*types.Instance, error) {
	var insts []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances).Bucket([]byte(artID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			insts = append(insts, &inst)
			return nil
		})
	})
	sort.SliceStable(insts, func(i, j int) bool {
		return insts[i].CreatedAt.Before(insts[j].CreatedAt)
	})
	return insts, err
}

// UpdateInstance overwrites an existing instance. It never recreates one that
// was deleted in the meantime.
func (s *BoltStore) UpdateInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances).Bucket([]byte(inst.ArtifactID))
		if b == nil || b.Get([]byte(inst.ID)) == nil {
			return fmt.Errorf("instance %s/%s: %w", inst.ArtifactID, inst.ID, ErrNotFound)
		}
		return put(b, inst.ID, inst)
	})
}

func (s *BoltStore) DeleteInstance(instID, artID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances).Bucket([]byte(artID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(instID))
	})
}

func (s *BoltStore) ClaimInstance(artID string) (*types.Instance, error) {
	var claimed *types.Instance
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances).Bucket([]byte(artID))
		if b == nil {
			return fmt.Errorf("artifact %s: %w", artID, ErrExhausted)
		}
		err := b.ForEach(func(_, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			if inst.Kind() != types.RolloutBuild || inst.Dirty || inst.Status.State != types.InstanceSucceeded {
				return nil
			}
			if claimed == nil || inst.CreatedAt.Before(claimed.CreatedAt) {
				claimed = &inst
			}
			return nil
		})
		if err != nil {
			return err
		}
		if claimed == nil {
			return fmt.Errorf("artifact %s: %w", artID, ErrExhausted)
		}

		claimed.Dirty = true
		claimed.UpdatedAt = time.Now()
		return put(b, claimed.ID, claimed)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *BoltStore) ReleaseInstance(instID, artID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances).Bucket([]byte(artID))
		if b == nil {
			return fmt.Errorf("instance %s/%s: %w", artID, instID, ErrNotFound)
		}
		v := b.Get([]byte(instID))
		if v == nil {
			return fmt.Errorf("instance %s/%s: %w", artID, instID, ErrNotFound)
		}
		var inst types.Instance
		if err := json.Unmarshal(v, &inst); err != nil {
			return err
		}
		if !inst.Dirty {
			return nil
		}
		inst.Dirty = false
		inst.UpdatedAt = time.Now()
		return put(b, inst.ID, &inst)
	})
}

// Secret operations

func (s *BoltStore) CreateSecret(secret *types.Secret) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		taken := false
		err := b.ForEach(func(_, v []byte) error {
			var existing types.Secret
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			taken = taken || existing.Name == secret.Name
			return nil
		})
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("secret %s: %w", secret.Name, ErrExists)
		}
		return put(b, secret.ID, secret)
	})
}

func (s *BoltStore) GetSecretByName(name string) (*types.Secret, error) {
	secrets, err := s.ListSecrets()
	if err != nil {
		return nil, err
	}
	for _, secret := range secrets {
		if secret.Name == name {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("secret %s: %w", name, ErrNotFound)
}

func (s *BoltStore) ListSecrets() ([]*types.Secret, error) {
	var secrets []*types.Secret
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).ForEach(func(_, v []byte) error {
			var secret types.Secret
			if err := json.Unmarshal(v, &secret); err != nil {
				return err
			}
			secrets = append(secrets, &secret)
			return nil
		})
	})
	return secrets, err
}

func (s *BoltStore) DeleteSecret(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete([]byte(id))
	})
}

// Account operations

func (s *BoltStore) CreateAccount(account *types.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if _, _, err := findAccount(b, account.Name); err == nil {
			return fmt.Errorf("account %s: %w", account.Name, ErrExists)
		}
		return put(b, account.ID, account)
	})
}

func findAccount(b *bolt.Bucket, name string) (string, *types.Account, error) {
	var (
		key   string
		found *types.Account
	)
	err := b.ForEach(func(k, v []byte) error {
		if found != nil {
			return nil
		}
		var acct types.Account
		if err := json.Unmarshal(v, &acct); err != nil {
			return err
		}
		if acct.Name == name {
			key, found = string(k), &acct
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	if found == nil {
		return "", nil, fmt.Errorf("account %s: %w", name, ErrNotFound)
	}
	return key, found, nil
}

func (s *BoltStore) GetAccountByName(name string) (*types.Account, error) {
	var acct *types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		_, acct, err = findAccount(tx.Bucket(bucketAccounts), name)
		return err
	})
	return acct, err
}

func (s *BoltStore) ListAccounts() ([]*types.Account, error) {
	var accounts []*types.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var acct types.Account
			if err := json.Unmarshal(v, &acct); err != nil {
				return err
			}
			accounts = append(accounts, &acct)
			return nil
		})
	})
	return accounts, err
}

func (s *BoltStore) AcquireAccount(name string) (*types.Account, error) {
	var acct *types.Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		key, found, err := findAccount(b, name)
		if err != nil {
			return err
		}
		if found.InStock <= 0 {
			return fmt.Errorf("account %s: %w", name, ErrExhausted)
		}
		found.InStock--
		found.UpdatedAt = time.Now()
		acct = found
		return put(b, key, found)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ReleaseAccount returns one unit of stock, capped at the pool's total
func (s *BoltStore) ReleaseAccount(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		key, found, err := findAccount(b, name)
		if err != nil {
			return err
		}
		if found.InStock >= found.Total {
			return nil
		}
		found.InStock++
		found.UpdatedAt = time.Now()
		return put(b, key, found)
	})
}

func (s *BoltStore) DeleteAccount(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Delete([]byte(id))
	})
}
