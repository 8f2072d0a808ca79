package api

import (
	"time"

	"github.com/BinJu/train/pkg/types"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// QueuedResponse is returned when an artifact id was put on the queue
type QueuedResponse struct {
	ArtifactID string `json:"art_id"`
	Status     string `json:"status"`
}

// ArtifactSummary is one row of GET /api/v1/art
type ArtifactSummary struct {
	ID       string                `json:"id"`
	Revision int                   `json:"revision"`
	Total    int                   `json:"total"`
	Target   int                   `json:"target"`
	Build    types.RolloutStatus   `json:"build"`
	Clean    types.RolloutStatus   `json:"clean"`
	Numbers  types.InstanceNumbers `json:"numbers"`
}

// ArtifactResponse is returned by GET /api/v1/art/{id} and POST /api/v1/art
type ArtifactResponse struct {
	Artifact  *types.Artifact       `json:"artifact"`
	Instances []*types.Instance     `json:"instances"`
	Numbers   types.InstanceNumbers `json:"numbers"`
	ToDeploy  int                   `json:"to_deploy"`
}

// BorrowResponse is returned by PUT /api/v1/art/{id}/borrow
type BorrowResponse struct {
	ArtifactID string            `json:"art_id"`
	InstanceID string            `json:"inst_id"`
	Results    map[string]string `json:"results,omitempty"`
}

// TeardownResponse is returned by DELETE /api/v1/art/{id}
type TeardownResponse struct {
	ArtifactID  string `json:"art_id"`
	RunsDeleted int    `json:"runs_deleted"`
}

// CredentialRequest is the body of POST /api/v1/secret and /api/v1/account.
// Total is ignored for secrets.
type CredentialRequest struct {
	Name  string            `json:"name" validate:"required,max=63"`
	Total int               `json:"total,omitempty" validate:"gte=0"`
	Data  map[string]string `json:"data" validate:"required,min=1"`
}

// SecretSummary describes a secret without its data
type SecretSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountSummary describes an account pool without its data
type AccountSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	InStock   int       `json:"in_stock"`
	CreatedAt time.Time `json:"created_at"`
}
