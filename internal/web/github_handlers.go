package web

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/notify"
)

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	links, err := s.store.FindLinksByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if links == nil {
		links = []db.GitHubProjectLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

type createLinkRequest struct {
	GitHubProjectID string  `json:"github_project_id"`
	Owner           string  `json:"owner"`
	Repo            *string `json:"repo,omitempty"`
	Number          *int64  `json:"number,omitempty"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.GitHubProjectID == "" || req.Owner == "" {
		badRequest(w, "github_project_id and owner are required")
		return
	}
	if err := s.syncer.Provider().CheckAvailable(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	link, err := s.store.CreateLink(r.Context(), db.CreateGitHubProjectLink{
		ProjectID:       projectID,
		GitHubProjectID: req.GitHubProjectID,
		Owner:           req.Owner,
		Repo:            req.Repo,
		Number:          req.Number,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(r.PathValue("link_id"))
	if err != nil {
		badRequest(w, "invalid link id")
		return
	}
	if err := s.store.DeleteLink(r.Context(), linkID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleLinkSync(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(r.PathValue("link_id"))
	if err != nil {
		badRequest(w, "invalid link id")
		return
	}
	link, err := s.store.FindLink(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	link, err = s.store.SetLinkSyncEnabled(r.Context(), linkID, !link.SyncEnabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleSyncLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(r.PathValue("link_id"))
	if err != nil {
		badRequest(w, "invalid link id")
		return
	}
	link, err := s.store.FindLink(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.syncer.Provider().CheckAvailable(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.syncer.SyncFromGitHub(r.Context(), s.store, link)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		}
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
		s.metrics.SyncItemErrorsTotal.Add(float64(len(result.Errors)))
	}
	if s.notifier != nil && len(result.Errors) > 0 {
		msg := fmt.Sprintf("GitHub sync for link %s finished with %d item errors", linkID, len(result.Errors))
		s.notifier.Notify(r.Context(), notify.EventSyncErrors, msg)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(r.PathValue("link_id"))
	if err != nil {
		badRequest(w, "invalid link id")
		return
	}
	mappings, err := s.store.FindMappingsByLink(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	if mappings == nil {
		mappings = []db.GitHubIssueMapping{}
	}
	writeJSON(w, http.StatusOK, mappings)
}
