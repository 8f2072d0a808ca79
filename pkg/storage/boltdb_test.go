package storage

import (
	"testing"
	"time"

	"github.com/BinJu/train/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newInstance(artID, id string, state types.InstanceState, dirty bool, age time.Duration) *types.Instance {
	now := time.Now()
	return &types.Instance{
		ID:         id,
		ArtifactID: artID,
		RunHandle:  "build-" + artID + "-run-" + id,
		Dirty:      dirty,
		Status:     types.InstanceStatus{State: state},
		CreatedAt:  now.Add(-age),
		UpdatedAt:  now,
	}
}

func TestArtifactCRUD(t *testing.T) {
	store := newTestStore(t)

	art := types.NewArtifact("opsman", 3, 2)
	require.NoError(t, store.CreateArtifact(art))
	assert.ErrorIs(t, store.CreateArtifact(art), ErrExists)

	got, err := store.GetArtifact("opsman")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, types.RolloutNotScheduled, got.Build.Status)

	got.Target = 3
	require.NoError(t, store.UpdateArtifact(got))
	got, err = store.GetArtifact("opsman")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Target)

	assert.ErrorIs(t, store.UpdateArtifact(types.NewArtifact("ghost", 1, 1)), ErrNotFound)

	ids, err := store.ListArtifactIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"opsman"}, ids)

	require.NoError(t, store.DeleteArtifact("opsman"))
	_, err = store.GetArtifact("opsman")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRolloutStatus(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateArtifact(types.NewArtifact("opsman", 3, 2)))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateRolloutStatus("opsman", types.RolloutClean, types.RolloutPendingAccount, now))

	art, err := store.GetArtifact("opsman")
	require.NoError(t, err)
	assert.Equal(t, types.RolloutPendingAccount, art.Clean.Status)
	assert.True(t, now.Equal(art.Clean.LastScheduled))
	assert.Equal(t, types.RolloutNotScheduled, art.Build.Status)

	// zero time keeps the previous schedule time
	require.NoError(t, store.UpdateRolloutStatus("opsman", types.RolloutClean, types.RolloutSucceeded, time.Time{}))
	art, err = store.GetArtifact("opsman")
	require.NoError(t, err)
	assert.Equal(t, types.RolloutSucceeded, art.Clean.Status)
	assert.True(t, now.Equal(art.Clean.LastScheduled))

	assert.ErrorIs(t, store.UpdateRolloutStatus("ghost", types.RolloutBuild, types.RolloutFailed, now), ErrNotFound)
}

func TestInstanceCRUD(t *testing.T) {
	store := newTestStore(t)

	newer := newInstance("opsman", "b", types.InstanceRunning, false, time.Minute)
	older := newInstance("opsman", "a", types.InstanceRunning, false, time.Hour)
	require.NoError(t, store.CreateInstance(newer))
	require.NoError(t, store.CreateInstance(older))
	require.NoError(t, store.CreateInstance(newInstance("other", "c", types.InstanceRunning, false, 0)))
	assert.ErrorIs(t, store.CreateInstance(older), ErrExists)

	insts, err := store.ListInstances("opsman")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "a", insts[0].ID, "oldest first")

	older.Status = types.StatusFailed("PipelineRunTimeout")
	require.NoError(t, store.UpdateInstance(older))
	got, err := store.GetInstance("a", "opsman")
	require.NoError(t, err)
	assert.Equal(t, "Failed(PipelineRunTimeout)", got.Status.String())

	require.NoError(t, store.DeleteInstance("a", "opsman"))
	_, err = store.GetInstance("a", "opsman")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateInstance(older), ErrNotFound, "deleted instances are not resurrected")

	empty, err := store.ListInstances("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteArtifactDropsInstances(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateArtifact(types.NewArtifact("opsman", 1, 1)))
	require.NoError(t, store.CreateInstance(newInstance("opsman", "a", types.InstanceRunning, false, 0)))

	require.NoError(t, store.DeleteArtifact("opsman"))

	insts, err := store.ListInstances("opsman")
	require.NoError(t, err)
	assert.Empty(t, insts)
}

func TestClaimInstance(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateInstance(newInstance("opsman", "running", types.InstanceRunning, false, 3*time.Hour)))
	require.NoError(t, store.CreateInstance(newInstance("opsman", "dirty", types.InstanceSucceeded, true, 2*time.Hour)))
	require.NoError(t, store.CreateInstance(newInstance("opsman", "young", types.InstanceSucceeded, false, time.Minute)))
	require.NoError(t, store.CreateInstance(newInstance("opsman", "old", types.InstanceSucceeded, false, time.Hour)))

	clean := newInstance("opsman", "cleaner", types.InstanceSucceeded, false, 4*time.Hour)
	clean.RunHandle = "clean-opsman-run-x"
	require.NoError(t, store.CreateInstance(clean))

	first, err := store.ClaimInstance("opsman")
	require.NoError(t, err)
	assert.Equal(t, "old", first.ID)
	assert.True(t, first.Dirty)

	second, err := store.ClaimInstance("opsman")
	require.NoError(t, err)
	assert.Equal(t, "young", second.ID)

	_, err = store.ClaimInstance("opsman")
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = store.ClaimInstance("nobody")
	assert.ErrorIs(t, err, ErrExhausted)

	stored, err := store.GetInstance("old", "opsman")
	require.NoError(t, err)
	assert.True(t, stored.Dirty)

	// A released claim makes the instance claimable again
	require.NoError(t, store.ReleaseInstance("old", "opsman"))
	again, err := store.ClaimInstance("opsman")
	require.NoError(t, err)
	assert.Equal(t, "old", again.ID)

	assert.ErrorIs(t, store.ReleaseInstance("ghost", "opsman"), ErrNotFound)
	assert.ErrorIs(t, store.ReleaseInstance("old", "nobody"), ErrNotFound)
}

func TestSecrets(t *testing.T) {
	store := newTestStore(t)

	secret := &types.Secret{ID: "s1", Name: "pivnet", Data: []byte("sealed")}
	require.NoError(t, store.CreateSecret(secret))
	assert.ErrorIs(t, store.CreateSecret(&types.Secret{ID: "s2", Name: "pivnet"}), ErrExists)

	got, err := store.GetSecretByName("pivnet")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got.Data)

	_, err = store.GetSecretByName("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteSecret("s1"))
	secrets, err := store.ListSecrets()
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestAccountStock(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateAccount(&types.Account{ID: "a1", Name: "gcp", Total: 2, InStock: 2}))
	assert.ErrorIs(t, store.CreateAccount(&types.Account{ID: "a2", Name: "gcp"}), ErrExists)

	for i := 0; i < 2; i++ {
		_, err := store.AcquireAccount("gcp")
		require.NoError(t, err)
	}
	_, err := store.AcquireAccount("gcp")
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = store.AcquireAccount("aws")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.ReleaseAccount("gcp"))
	require.NoError(t, store.ReleaseAccount("gcp"))
	require.NoError(t, store.ReleaseAccount("gcp"))

	acct, err := store.GetAccountByName("gcp")
	require.NoError(t, err)
	assert.Equal(t, 2, acct.InStock, "release is capped at total")

	require.NoError(t, store.DeleteAccount("a1"))
	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
