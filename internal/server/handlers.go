package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/CihadCengiz/prompt-generator/internal/ingest"
)

type embedRepoRequest struct {
	FilePath    string `json:"filePath"`
	RepoContent string `json:"repoContent"`
	RepoTag     string `json:"repoTag"`
	CommitHash  string `json:"commitHash"`
}

type deleteCommitRequest struct {
	RepoTag    string `json:"repoTag"`
	CommitHash string `json:"commitHash"`
}

type deleteCommitFilesRequest struct {
	RepoTag      string   `json:"repoTag"`
	CommitHash   string   `json:"commitHash"`
	ChangedFiles []string `json:"changedFiles"`
}

type contextRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

type contextResponse struct {
	Chunks  []string `json:"chunks"`
	Context string   `json:"context"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEmbedRepo(w http.ResponseWriter, r *http.Request) {
	var req embedRepoRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" || req.RepoContent == "" || req.CommitHash == "" {
		s.respondError(w, http.StatusBadRequest, "Missing required fields: filePath, repoContent, or commitHash")
		return
	}

	res, err := s.pipeline.EmbedAndStore(r.Context(), req.FilePath, req.RepoContent, s.repoTag(req.RepoTag), req.CommitHash)
	if err != nil {
		s.fail(w, r, "embed file", err, "Failed to embed file")
		return
	}
	s.respondJSON(w, http.StatusOK, successResponse{
		Status:  "success",
		Message: fmt.Sprintf("Embedded %s successfully.", req.FilePath),
		Result:  res,
	})
}

func (s *Server) handleDeleteCommit(w http.ResponseWriter, r *http.Request) {
	var req deleteCommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CommitHash == "" {
		s.respondError(w, http.StatusBadRequest, "Missing required field: commitHash")
		return
	}

	res, err := s.pipeline.DeleteByCommit(r.Context(), s.repoTag(req.RepoTag), req.CommitHash)
	if err != nil {
		s.fail(w, r, "delete commit", err, "Failed to delete commit chunks")
		return
	}
	s.respondJSON(w, http.StatusOK, successResponse{
		Status:  "success",
		Message: fmt.Sprintf("Deleted chunks for commit %s.", req.CommitHash),
		Result:  res,
	})
}

func (s *Server) handleDeleteCommitFiles(w http.ResponseWriter, r *http.Request) {
	var req deleteCommitFilesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CommitHash == "" || len(req.ChangedFiles) == 0 {
		s.respondError(w, http.StatusBadRequest, "Missing commitHash or changedFiles array")
		return
	}

	res, err := s.pipeline.DeleteByFileList(r.Context(), s.repoTag(req.RepoTag), req.CommitHash, req.ChangedFiles)
	if err != nil {
		s.fail(w, r, "delete files", err, "Failed to delete changed file chunks")
		return
	}
	s.respondJSON(w, http.StatusOK, successResponse{
		Status:  "success",
		Message: fmt.Sprintf("Deleted chunks for changed files in commit %s.", req.CommitHash),
		Result:  res,
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "Missing required field: query")
		return
	}

	chunks, err := s.pipeline.GetRelevantChunks(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.fail(w, r, "retrieve", err, "Failed to retrieve context")
		return
	}
	if chunks == nil {
		chunks = []string{}
	}
	s.respondJSON(w, http.StatusOK, contextResponse{
		Chunks:  chunks,
		Context: strings.Join(chunks, "\n\n"),
	})
}

func (s *Server) repoTag(tag string) string {
	if tag == "" {
		return s.config.DefaultRepoTag
	}
	return tag
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail logs the pipeline error and answers with a fixed message. Scope
// validation failures are the caller's fault and map to 400.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, message string) {
	if errors.Is(err, ingest.ErrInvalidScope) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", "error", err, "path", r.URL.Path)
	s.respondError(w, http.StatusInternalServerError, message)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
