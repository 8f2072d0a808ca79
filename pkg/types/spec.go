package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zeebo/blake3"
)

var specValidate = validator.New()

// ArtifactSpec is the user-facing document an artifact is created or updated
// from. Manifests are opaque workflow definitions handed to the runner as-is.
type ArtifactSpec struct {
	Name   string            `json:"name" yaml:"name" validate:"required,hostname_rfc1123,max=48"`
	Total  int               `json:"total" yaml:"total" validate:"gte=0"`
	Target int               `json:"target" yaml:"target" validate:"gte=0"`
	Tags   map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Refs   []string          `json:"refs,omitempty" yaml:"refs,omitempty" validate:"dive,required"`
	Build  RolloutSpec       `json:"build" yaml:"build"`
	Clean  RolloutSpec       `json:"clean" yaml:"clean"`
}

// RolloutSpec is the user-supplied part of a rollout
type RolloutSpec struct {
	Manifest string   `json:"manifest" yaml:"manifest" validate:"required"`
	Secrets  []string `json:"secrets,omitempty" yaml:"secrets,omitempty" validate:"dive,required"`
	Accounts []string `json:"accounts,omitempty" yaml:"accounts,omitempty" validate:"dive,required"`
}

// Validate checks the spec's structural constraints. Target above Total is
// accepted; such an artifact simply never reaches its target.
func (s *ArtifactSpec) Validate() error {
	if err := specValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid artifact spec: %w", err)
	}
	return nil
}

// Digest returns a stable BLAKE3 hash of the spec
func (s *ArtifactSpec) Digest() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode spec: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Apply folds the spec into an artifact. With a nil current artifact a new
// one is built; otherwise rollout status and schedule times are preserved and
// the revision moves only if the spec actually changed.
func (s *ArtifactSpec) Apply(current *Artifact) (*Artifact, error) {
	digest, err := s.Digest()
	if err != nil {
		return nil, err
	}

	art := current
	if art == nil {
		art = NewArtifact(s.Name, s.Total, s.Target)
	} else if art.Digest != digest {
		art.Revision++
		art.UpdatedAt = time.Now()
	}

	art.Total = s.Total
	art.Target = s.Target
	art.Digest = digest
	art.Tags = map[string]string{}
	for k, v := range s.Tags {
		art.Tags[k] = v
	}

	if art.Build == nil {
		art.Build = NewRollout(RolloutBuild, art.ID)
	}
	if art.Clean == nil {
		art.Clean = NewRollout(RolloutClean, art.ID)
	}
	applyRollout(art.Build, s.Build)
	art.Build.ArtifactRefs = append([]string(nil), s.Refs...)
	applyRollout(art.Clean, s.Clean)

	return art, nil
}

func applyRollout(r *Rollout, spec RolloutSpec) {
	r.Manifest = spec.Manifest
	r.Secrets = append([]string(nil), spec.Secrets...)
	r.Accounts = append([]string(nil), spec.Accounts...)
}
