package web

import (
	"net/http"

	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/orchestrator"
)

func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	genres, err := s.store.FindGenresByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if genres == nil {
		genres = []db.DependencyGenre{}
	}
	writeJSON(w, http.StatusOK, genres)
}

type createGenreRequest struct {
	Name     string  `json:"name"`
	Color    *string `json:"color,omitempty"`
	Position *int32  `json:"position,omitempty"`
}

func (s *Server) handleCreateGenre(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	var req createGenreRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	genre, err := s.store.CreateGenre(r.Context(), db.CreateGenre{
		ProjectID: projectID,
		Name:      req.Name,
		Color:     req.Color,
		Position:  req.Position,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.genreFeeds.publish(projectID, orchestrator.Event{Type: eventGenreCreated, Data: genre})
	writeJSON(w, http.StatusCreated, genre)
}

type updateGenreRequest struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Position *int32  `json:"position,omitempty"`
}

func (s *Server) handleUpdateGenre(w http.ResponseWriter, r *http.Request) {
	genreID, err := uuid.Parse(r.PathValue("genre_id"))
	if err != nil {
		badRequest(w, "invalid genre id")
		return
	}
	var req updateGenreRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	genre, err := s.store.UpdateGenre(r.Context(), genreID, db.UpdateGenre{
		Name:     req.Name,
		Color:    req.Color,
		Position: req.Position,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.genreFeeds.publish(genre.ProjectID, orchestrator.Event{Type: eventGenreUpdated, Data: genre})
	writeJSON(w, http.StatusOK, genre)
}

type reorderGenresRequest struct {
	GenreIDs []uuid.UUID `json:"genre_ids"`
}

func (s *Server) handleReorderGenres(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	var req reorderGenresRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(req.GenreIDs) == 0 {
		badRequest(w, "genre_ids is required")
		return
	}
	genres, err := s.store.ReorderGenres(r.Context(), req.GenreIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	s.genreFeeds.publish(projectID, orchestrator.Event{Type: eventGenresReordered, Data: genres})
	writeJSON(w, http.StatusOK, genres)
}

func (s *Server) handleDeleteGenre(w http.ResponseWriter, r *http.Request) {
	genreID, err := uuid.Parse(r.PathValue("genre_id"))
	if err != nil {
		badRequest(w, "invalid genre id")
		return
	}
	genre, err := s.store.FindGenre(r.Context(), genreID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteGenre(r.Context(), genreID); err != nil {
		writeError(w, err)
		return
	}
	s.genreFeeds.publish(genre.ProjectID, orchestrator.Event{Type: eventGenreDeleted, Data: map[string]uuid.UUID{"id": genreID}})
	w.WriteHeader(http.StatusNoContent)
}
