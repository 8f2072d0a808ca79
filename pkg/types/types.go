package types

import (
	"strings"
	"time"
)

// RolloutKind identifies which of an artifact's two rollouts an operation targets
type RolloutKind string

const (
	RolloutBuild RolloutKind = "build"
	RolloutClean RolloutKind = "clean"
)

// RolloutStatus is the aggregate state of a rollout
type RolloutStatus string

const (
	RolloutNotScheduled   RolloutStatus = "NotScheduled"
	RolloutRunning        RolloutStatus = "Running"
	RolloutPendingAccount RolloutStatus = "PendingAccount"
	RolloutPendingArtRef  RolloutStatus = "PendingArtRef"
	RolloutFailed         RolloutStatus = "Failed"
	RolloutSucceeded      RolloutStatus = "Succeeded"
)

// NeedsAttention reports whether the status is one the reschedule pass picks up
func (s RolloutStatus) NeedsAttention() bool {
	return s == RolloutFailed || s == RolloutPendingArtRef || s == RolloutPendingAccount
}

// Artifact is a named workload specification kept rolled out to Target ready
// instances, never exceeding Total instances of any state.
type Artifact struct {
	ID       string            `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Total    int               `json:"total"`
	Target   int               `json:"target"`
	Build    *Rollout          `json:"build"`
	Clean    *Rollout          `json:"clean"`
	Revision int               `json:"revision"`
	Digest   string            `json:"digest,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt moves only when a user changes the specification
	UpdatedAt time.Time `json:"updated_at"`
}

// Rollout describes one direction of work (build or clean) for an artifact
type Rollout struct {
	Name          string        `json:"name"`
	Status        RolloutStatus `json:"status"`
	LastScheduled time.Time     `json:"last_scheduled"`
	Accounts      []string      `json:"accounts,omitempty"`
	Secrets       []string      `json:"secrets,omitempty"`
	ArtifactRefs  []string      `json:"artifact_refs,omitempty"`
	Manifest      string        `json:"manifest,omitempty"`
}

// neverScheduled is the placeholder last-scheduled time for fresh rollouts
var neverScheduled = time.Date(2012, 12, 12, 12, 12, 12, 0, time.UTC)

// NewArtifact creates an artifact with both rollouts in NotScheduled state
func NewArtifact(id string, total, target int) *Artifact {
	now := time.Now()
	return &Artifact{
		ID:        id,
		Tags:      map[string]string{},
		Total:     total,
		Target:    target,
		Build:     NewRollout(RolloutBuild, id),
		Clean:     NewRollout(RolloutClean, id),
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewRollout creates an empty rollout of the given kind for an artifact
func NewRollout(kind RolloutKind, artifactID string) *Rollout {
	return &Rollout{
		Name:          RolloutName(kind, artifactID),
		Status:        RolloutNotScheduled,
		LastScheduled: neverScheduled,
	}
}

// Rollout returns the rollout of the given kind
func (a *Artifact) Rollout(kind RolloutKind) *Rollout {
	if kind == RolloutClean {
		return a.Clean
	}
	return a.Build
}

// RolloutName derives the workflow definition name for a rollout
func RolloutName(kind RolloutKind, artifactID string) string {
	return string(kind) + "-" + artifactID
}

// KindFromRunHandle infers which rollout produced a run. Run handles start
// with the pipeline name, which starts with the rollout kind.
func KindFromRunHandle(handle string) (RolloutKind, bool) {
	switch {
	case strings.HasPrefix(handle, string(RolloutBuild)+"-"):
		return RolloutBuild, true
	case strings.HasPrefix(handle, string(RolloutClean)+"-"):
		return RolloutClean, true
	}
	return "", false
}

// InstanceState is the coarse state of one workflow run
type InstanceState string

const (
	InstanceUnknown   InstanceState = "Unknown"
	InstanceRunning   InstanceState = "Running"
	InstanceFailed    InstanceState = "Failed"
	InstanceSucceeded InstanceState = "Succeeded"
)

// InstanceStatus is an instance state plus the failure reason, if any
type InstanceStatus struct {
	State  InstanceState `json:"state"`
	Reason string        `json:"reason,omitempty"`
}

func StatusUnknown() InstanceStatus   { return InstanceStatus{State: InstanceUnknown} }
func StatusRunning() InstanceStatus   { return InstanceStatus{State: InstanceRunning} }
func StatusSucceeded() InstanceStatus { return InstanceStatus{State: InstanceSucceeded} }

// StatusFailed builds a failed status carrying reason
func StatusFailed(reason string) InstanceStatus {
	return InstanceStatus{State: InstanceFailed, Reason: reason}
}

// Terminal reports whether the run can no longer change state
func (s InstanceStatus) Terminal() bool {
	return s.State == InstanceSucceeded || s.State == InstanceFailed
}

func (s InstanceStatus) String() string {
	if s.State == InstanceFailed && s.Reason != "" {
		return string(s.State) + "(" + s.Reason + ")"
	}
	return string(s.State)
}

// Instance is one concrete execution of a rollout
type Instance struct {
	ID         string            `json:"id"`
	ArtifactID string            `json:"artifact_id"`
	RunHandle  string            `json:"run_handle"`
	Dirty      bool              `json:"dirty"`
	Status     InstanceStatus    `json:"status"`
	Results    map[string]string `json:"results,omitempty"`
	// ReclaimOf is set on clean instances to the build instance they tear down
	ReclaimOf string `json:"reclaim_of,omitempty"`
	// Accounts lists the account pools the run took stock from
	Accounts  []string  `json:"accounts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind returns the rollout that produced the instance. Instances whose run
// handle does not name a rollout are treated as build instances.
func (i *Instance) Kind() RolloutKind {
	if kind, ok := KindFromRunHandle(i.RunHandle); ok {
		return kind
	}
	if i.ReclaimOf != "" {
		return RolloutClean
	}
	return RolloutBuild
}

// InstanceNumbers aggregates instance states for the deployment arithmetic
type InstanceNumbers struct {
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	DoneClean int `json:"done_clean"`
	DoneDirty int `json:"done_dirty"`
}

// Secret is a named, encrypted key-value bag mounted into runs
type Secret struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Data      []byte    `json:"data,omitempty"` // Encrypted with AES-256-GCM
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a pool of interchangeable credentials. Each run that needs the
// account takes one unit of stock.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	InStock   int       `json:"in_stock"`
	Data      []byte    `json:"data,omitempty"` // Encrypted with AES-256-GCM
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
