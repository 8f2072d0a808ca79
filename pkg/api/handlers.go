package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/BinJu/train/pkg/events"
	"github.com/BinJu/train/pkg/scheduler"
	"github.com/BinJu/train/pkg/storage"
	"github.com/BinJu/train/pkg/types"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

const maxBodyBytes = 4 << 20

// handleSchedule handles POST /api/v1/sched/{id}
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	artID := chi.URLParam(r, "id")
	if !s.artifactExists(w, artID) {
		return
	}

	if err := s.queue.Enqueue(r.Context(), artID); err != nil {
		s.logger.Error().Err(err).Str("art_id", artID).Msg("Failed to enqueue artifact")
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue artifact")
		return
	}
	respondJSON(w, http.StatusAccepted, QueuedResponse{ArtifactID: artID, Status: "queued"})
}

// handleApplyArtifact handles POST /api/v1/art. The body is an ArtifactSpec
// in YAML, or JSON when sent as application/json.
func (s *Server) handleApplyArtifact(w http.ResponseWriter, r *http.Request) {
	var spec types.ArtifactSpec
	if err := decodeSpec(r, &spec); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid artifact spec: "+err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.store.GetArtifact(spec.Name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("art_id", spec.Name).Msg("Failed to load artifact")
		s.writeError(w, http.StatusInternalServerError, "failed to load artifact")
		return
	}

	art, err := spec.Apply(current)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if current == nil {
		status = http.StatusCreated
		err = s.store.CreateArtifact(art)
	} else {
		err = s.store.UpdateArtifact(art)
	}
	if errors.Is(err, storage.ErrExists) {
		s.writeError(w, http.StatusConflict, "artifact was created concurrently")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("art_id", art.ID).Msg("Failed to save artifact")
		s.writeError(w, http.StatusInternalServerError, "failed to save artifact")
		return
	}

	if err := s.queue.Enqueue(r.Context(), art.ID); err != nil {
		s.logger.Error().Err(err).Str("art_id", art.ID).Msg("Failed to enqueue artifact")
		s.writeError(w, http.StatusInternalServerError, "artifact saved but not queued")
		return
	}

	s.logger.Info().Str("art_id", art.ID).Int("revision", art.Revision).Msg("Artifact applied")
	s.publish(events.New(events.EventArtifactApplied, art.ID, "artifact applied").
		With("revision", strconv.Itoa(art.Revision)))

	resp, err := s.artifactResponse(art)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load instances")
		return
	}
	respondJSON(w, status, resp)
}

// handleListArtifacts handles GET /api/v1/art
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	arts, err := s.store.ListArtifacts()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list artifacts")
		s.writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}

	out := make([]ArtifactSummary, 0, len(arts))
	for _, art := range arts {
		insts, err := s.store.ListInstances(art.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to list instances")
			return
		}
		out = append(out, ArtifactSummary{
			ID:       art.ID,
			Revision: art.Revision,
			Total:    art.Total,
			Target:   art.Target,
			Build:    art.Build.Status,
			Clean:    art.Clean.Status,
			Numbers:  scheduler.CountInstances(insts),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetArtifact handles GET /api/v1/art/{id}
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artID := chi.URLParam(r, "id")
	art, err := s.store.GetArtifact(artID)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load artifact")
		return
	}

	resp, err := s.artifactResponse(art)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load instances")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleDeleteArtifact handles DELETE /api/v1/art/{id}. Every run of the
// artifact is deleted from the runner and its account stock returned before
// the records go.
func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	artID := chi.URLParam(r, "id")
	if !s.artifactExists(w, artID) {
		return
	}

	insts, err := s.store.ListInstances(artID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}

	deleted := 0
	for _, inst := range insts {
		if err := s.runner.DeleteRun(r.Context(), inst.RunHandle, s.config.Namespace); err != nil {
			s.logger.Warn().Err(err).Str("art_id", artID).Str("run_handle", inst.RunHandle).Msg("Failed to delete run")
		} else {
			deleted++
		}
		for _, name := range inst.Accounts {
			if err := s.store.ReleaseAccount(name); err != nil {
				s.logger.Error().Err(err).Str("account", name).Msg("Failed to release account")
			}
		}
	}

	if err := s.store.DeleteArtifact(artID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Str("art_id", artID).Msg("Failed to delete artifact")
		s.writeError(w, http.StatusInternalServerError, "failed to delete artifact")
		return
	}

	s.logger.Info().Str("art_id", artID).Int("runs_deleted", deleted).Msg("Artifact torn down")
	s.publish(events.New(events.EventArtifactTornDown, artID, "artifact torn down").
		With("runs_deleted", strconv.Itoa(deleted)))
	respondJSON(w, http.StatusOK, TeardownResponse{ArtifactID: artID, RunsDeleted: deleted})
}

// handleBorrow handles PUT /api/v1/art/{id}/borrow. It hands out the oldest
// clean instance, marking it dirty, and enqueues the artifact so the pool is
// topped up.
func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	artID := chi.URLParam(r, "id")
	if !s.artifactExists(w, artID) {
		return
	}

	inst, err := s.store.ClaimInstance(artID)
	if errors.Is(err, storage.ErrExhausted) {
		s.writeError(w, http.StatusConflict, "no clean instance available")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("art_id", artID).Msg("Failed to claim instance")
		s.writeError(w, http.StatusInternalServerError, "failed to claim instance")
		return
	}

	if err := s.queue.Enqueue(r.Context(), artID); err != nil {
		s.logger.Warn().Err(err).Str("art_id", artID).Msg("Failed to enqueue borrowed artifact")
	}
	s.publish(events.New(events.EventInstanceBorrowed, artID, "instance borrowed").
		With("inst_id", inst.ID))

	respondJSON(w, http.StatusOK, BorrowResponse{
		ArtifactID: artID,
		InstanceID: inst.ID,
		Results:    inst.Results,
	})
}

// handleCreateSecret handles POST /api/v1/secret
func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredential(w, r)
	if !ok {
		return
	}

	secret, err := s.secrets.NewSecret(req.Name, req.Data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateSecret(secret); err != nil {
		s.writeStoreError(w, err, "secret")
		return
	}
	respondJSON(w, http.StatusCreated, SecretSummary{ID: secret.ID, Name: secret.Name, CreatedAt: secret.CreatedAt})
}

// handleListSecrets handles GET /api/v1/secret
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list secrets")
		return
	}
	out := make([]SecretSummary, 0, len(secrets))
	for _, sec := range secrets {
		out = append(out, SecretSummary{ID: sec.ID, Name: sec.Name, CreatedAt: sec.CreatedAt})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleCreateAccount handles POST /api/v1/account
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredential(w, r)
	if !ok {
		return
	}

	acct, err := s.secrets.NewAccount(req.Name, req.Total, req.Data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateAccount(acct); err != nil {
		s.writeStoreError(w, err, "account")
		return
	}
	respondJSON(w, http.StatusCreated, accountSummary(acct))
}

// handleListAccounts handles GET /api/v1/account
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.store.ListAccounts()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	out := make([]AccountSummary, 0, len(accts))
	for _, a := range accts {
		out = append(out, accountSummary(a))
	}
	respondJSON(w, http.StatusOK, out)
}

func accountSummary(a *types.Account) AccountSummary {
	return AccountSummary{ID: a.ID, Name: a.Name, Total: a.Total, InStock: a.InStock, CreatedAt: a.CreatedAt}
}

func (s *Server) artifactExists(w http.ResponseWriter, artID string) bool {
	_, err := s.store.GetArtifact(artID)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("art_id", artID).Msg("Failed to load artifact")
		s.writeError(w, http.StatusInternalServerError, "failed to load artifact")
		return false
	}
	return true
}

func (s *Server) artifactResponse(art *types.Artifact) (*ArtifactResponse, error) {
	insts, err := s.store.ListInstances(art.ID)
	if err != nil {
		return nil, err
	}
	if insts == nil {
		insts = []*types.Instance{}
	}
	nums := scheduler.CountInstances(insts)
	return &ArtifactResponse{
		Artifact:  art,
		Instances: insts,
		Numbers:   nums,
		ToDeploy:  scheduler.ToDeploy(art.Total, art.Target, nums),
	}, nil
}

func (s *Server) decodeCredential(w http.ResponseWriter, r *http.Request) (*CredentialRequest, bool) {
	var req CredentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func decodeSpec(r *http.Request, spec *types.ArtifactSpec) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		return json.Unmarshal(body, spec)
	}
	return yaml.Unmarshal(body, spec)
}

func (s *Server) publish(ev *events.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrExists) {
		s.writeError(w, http.StatusConflict, what+" already exists")
		return
	}
	s.logger.Error().Err(err).Msg("Failed to save " + what)
	s.writeError(w, http.StatusInternalServerError, "failed to save "+what)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
