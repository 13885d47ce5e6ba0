package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"unicode/utf8"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
)

type errorBody struct {
	Error string `json:"error"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type messageResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a client-safe message.
// Internal and provider details are logged only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.HTTPStatus(err)
	if status >= 500 {
		log.Printf("[SERVER] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: core.PublicMessage(err)})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Invalid("body", "invalid JSON body")
	}
	return nil
}

// scopeFromValues reads the scope fields from query or form values.
func scopeFromValues(get func(string) string) core.ScopeInput {
	return core.ScopeInput{
		OwnerID: get("ownerId"),
		UserID:  get("userId"),
		UserID2: get("user_id"),
		TopicID: get("topicId"),
		Topic:   get("topic"),
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in core.ChatInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	response, err := s.service.ProcessTurn(r.Context(), in.Scope(s.defaultOwner), in.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: fmt.Sprintf("Upload exceeds the %d byte limit.", s.maxUpload),
			})
			return
		}
		writeError(w, r, core.Invalid("file", "a multipart form upload is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.Invalid("file", "no file part"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}
	if !utf8.Valid(content) {
		writeError(w, r, core.Invalid("file", "file must be UTF-8 text"))
		return
	}

	name := filepath.Base(header.Filename)
	scope := scopeFromValues(r.FormValue).Scope(s.defaultOwner)
	if err := s.service.IngestText(r.Context(), scope, string(content), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully ingested " + name})
}

func (s *Server) handleIngestRepo(w http.ResponseWriter, r *http.Request) {
	var in core.RepoInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	url := in.URL()
	job, err := s.service.StartRepoIngestion(r.Context(), in.Scope(s.defaultOwner), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: fmt.Sprintf("Started ingestion for %s. This may take several minutes.", url),
		JobID:   job.ID,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromValues(r.URL.Query().Get).Scope(s.defaultOwner)
	sources, err := s.service.ListSources(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memory.SourceViews(sources))
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.service.ListTopics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
