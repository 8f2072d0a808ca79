package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromRunHandle(t *testing.T) {
	tests := []struct {
		handle string
		kind   RolloutKind
		ok     bool
	}{
		{"build-opsman-run-8lvfx", RolloutBuild, true},
		{"clean-opsman-run-abcde", RolloutClean, true},
		{"build-clean-x-run-1", RolloutBuild, true},
		{"opsman-run-1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			kind, ok := KindFromRunHandle(tt.handle)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestInstanceKind(t *testing.T) {
	assert.Equal(t, RolloutClean, (&Instance{RunHandle: "clean-a-run-1"}).Kind())
	assert.Equal(t, RolloutBuild, (&Instance{RunHandle: "build-a-run-1"}).Kind())
	assert.Equal(t, RolloutClean, (&Instance{ReclaimOf: "inst-1"}).Kind())
	assert.Equal(t, RolloutBuild, (&Instance{}).Kind())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RolloutStatus
	}{
		{"no error", nil, RolloutRunning},
		{"pending art ref", ErrPendingArtRef, RolloutPendingArtRef},
		{"wrapped pending account", fmt.Errorf("acnt-x: %w", ErrPendingAccount), RolloutPendingAccount},
		{"anything else", errors.New("tkn exploded"), RolloutFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestNewArtifact(t *testing.T) {
	art := NewArtifact("opsman", 3, 2)

	assert.Equal(t, "build-opsman", art.Build.Name)
	assert.Equal(t, "clean-opsman", art.Clean.Name)
	assert.Equal(t, RolloutNotScheduled, art.Build.Status)
	assert.Equal(t, RolloutNotScheduled, art.Clean.Status)
	assert.Same(t, art.Clean, art.Rollout(RolloutClean))
	assert.Same(t, art.Build, art.Rollout(RolloutBuild))
	assert.True(t, art.Build.LastScheduled.Before(art.CreatedAt))
}

func TestInstanceStatusString(t *testing.T) {
	assert.Equal(t, "Running", StatusRunning().String())
	assert.Equal(t, "Failed(PipelineRunTimeout)", StatusFailed("PipelineRunTimeout").String())
	assert.True(t, StatusSucceeded().Terminal())
	assert.False(t, StatusUnknown().Terminal())
}

func TestRolloutStatusNeedsAttention(t *testing.T) {
	assert.True(t, RolloutFailed.NeedsAttention())
	assert.True(t, RolloutPendingAccount.NeedsAttention())
	assert.True(t, RolloutPendingArtRef.NeedsAttention())
	assert.False(t, RolloutRunning.NeedsAttention())
	assert.False(t, RolloutSucceeded.NeedsAttention())
	assert.False(t, RolloutNotScheduled.NeedsAttention())
}

func sampleSpec() *ArtifactSpec {
	return &ArtifactSpec{
		Name:   "opsman",
		Total:  3,
		Target: 2,
		Refs:   []string{"gcp-env"},
		Build: RolloutSpec{
			Manifest: "kind: Pipeline",
			Secrets:  []string{"pivnet"},
			Accounts: []string{"gcp"},
		},
		Clean: RolloutSpec{Manifest: "kind: Pipeline"},
	}
}

func TestArtifactSpecValidate(t *testing.T) {
	require.NoError(t, sampleSpec().Validate())

	bad := sampleSpec()
	bad.Name = "Not_A_Name"
	assert.Error(t, bad.Validate())

	bad = sampleSpec()
	bad.Total = -1
	assert.Error(t, bad.Validate())

	bad = sampleSpec()
	bad.Build.Manifest = ""
	assert.Error(t, bad.Validate())

	over := sampleSpec()
	over.Target = 10
	assert.NoError(t, over.Validate())
}

func TestArtifactSpecApply(t *testing.T) {
	spec := sampleSpec()

	art, err := spec.Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, "opsman", art.ID)
	assert.Equal(t, 1, art.Revision)
	assert.Equal(t, []string{"gcp-env"}, art.Build.ArtifactRefs)
	assert.Equal(t, []string{"pivnet"}, art.Build.Secrets)
	assert.Empty(t, art.Clean.ArtifactRefs)
	assert.NotEmpty(t, art.Digest)

	art.Build.Status = RolloutFailed
	updatedAt := art.UpdatedAt

	// Same spec: nothing moves
	again, err := spec.Apply(art)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Revision)
	assert.Equal(t, updatedAt, again.UpdatedAt)
	assert.Equal(t, RolloutFailed, again.Build.Status)

	// Changed spec: revision and updated_at move, status is kept
	spec.Target = 3
	changed, err := spec.Apply(again)
	require.NoError(t, err)
	assert.Equal(t, 2, changed.Revision)
	assert.Equal(t, 3, changed.Target)
	assert.False(t, changed.UpdatedAt.Before(updatedAt))
	assert.Equal(t, RolloutFailed, changed.Build.Status)
}
