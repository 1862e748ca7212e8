// Package api serves comparisons and project maintenance over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vismatch/formats"
	"vismatch/hashcache"
	"vismatch/imagehash"
	"vismatch/logging"
	"vismatch/registry"
	"vismatch/similarity"
	"vismatch/types"
	"vismatch/workerpool"
)

// Comparer ranks a project against an encoded image
type Comparer interface {
	CompareBytes(ctx context.Context, payload []byte, project string) ([]types.DistEntry, error)
}

// Annotator renders a project image for inclusion in a response
type Annotator func(path string) (string, error)

// PayloadDecoder turns the request's data field into image bytes
type PayloadDecoder func(s string) ([]byte, error)

// FileVerifier fails with an imagehash.DecodeError when path is not an image
// the indexer can read
type FileVerifier func(path string) error

var errBadRequest = errors.New("bad request")

// Server serves the HTTP API over a registry
type Server struct {
	registry       *registry.Registry
	comparer       Comparer
	decode         PayloadDecoder
	verify         FileVerifier
	annotate       Annotator
	pool           *workerpool.Pool
	logger         *slog.Logger
	limiter        *rate.Limiter
	compareTimeout time.Duration
	maxBodyBytes   int64
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAnnotator enables with_image responses
func WithAnnotator(a Annotator) Option {
	return func(s *Server) { s.annotate = a }
}

// WithCompareTimeout bounds each comparison and the shutdown drain
func WithCompareTimeout(d time.Duration) Option {
	return func(s *Server) { s.compareTimeout = d }
}

// WithWorkerPool runs upload verification and re-indexing on pool instead of
// the request goroutine
func WithWorkerPool(p *workerpool.Pool) Option {
	return func(s *Server) { s.pool = p }
}

// WithRateLimit admits at most rps comparisons and uploads per second; zero
// disables the limit
func WithRateLimit(rps float64) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithMaxBodyBytes caps request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// NewServer wires handlers to the registry and comparer. Uploads are checked
// with verify before they replace anything in a project
func NewServer(reg *registry.Registry, comparer Comparer, decode PayloadDecoder, verify FileVerifier, opts ...Option) *Server {
	s := &Server{
		registry:       reg,
		comparer:       comparer,
		decode:         decode,
		verify:         verify,
		compareTimeout: 30 * time.Second,
		maxBodyBytes:   32 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /diff", s.limited(s.handleDiff))
	mux.HandleFunc("POST /upload", s.limited(s.handleUpload))
	mux.HandleFunc("GET /projects", s.handleProjects)
	mux.HandleFunc("DELETE /projects/{name}", s.handleDeleteProject)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "ok"})
	})
	return s.logged(mux)
}

// ListenAndServe serves until ctx is cancelled, then drains connections
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("api listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.compareTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.TopK < 0 {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, similarity.ErrInvalidK))
		return
	}
	payload, err := s.decode(req.Data)
	if err != nil {
		s.writeError(w, &imagehash.DecodeError{Source: "data", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.compareTimeout)
	defer cancel()

	ranked, err := s.comparer.CompareBytes(ctx, payload, req.ProjectName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.TopK > 0 {
		ranked, _ = similarity.TopK(ranked, req.TopK)
	}

	result := make([]SimilarImage, len(ranked))
	for i, e := range ranked {
		result[i] = SimilarImage{
			ImageName: filepath.Base(e.Image),
			Distance:  e.Distance,
			Score:     e.Score,
		}
		if req.WithImage && s.annotate != nil {
			data, err := s.annotate(e.Image)
			if err != nil {
				s.logger.Warn("cannot attach image", "path", e.Image, "error", err)
				continue
			}
			result[i].Data = data
		}
	}

	s.writeJSON(w, http.StatusOK, DiffResponse{
		Success:       true,
		Message:       "ok",
		ProjectName:   req.ProjectName,
		CompareResult: result,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := registry.ValidName(req.ProjectName); err != nil {
		s.writeError(w, err)
		return
	}
	if registry.ValidName(req.ImageName) != nil || !formats.IsImageFile(req.ImageName) {
		s.writeError(w, fmt.Errorf("%w: unsupported image name %q", errBadRequest, req.ImageName))
		return
	}
	descriptor := types.DescriptorFor(req.ProjectName)
	if req.ProjectID != "" && !types.SameProject(descriptor, types.NewProjectDescriptor(req.ProjectID, req.ProjectName)) {
		s.writeError(w, fmt.Errorf("%w: project id %s does not belong to %s", errBadRequest, req.ProjectID, req.ProjectName))
		return
	}
	payload, err := s.decode(req.Data)
	if err != nil {
		s.writeError(w, &imagehash.DecodeError{Source: "data", Err: err})
		return
	}

	dir := filepath.Join(s.registry.Root(), req.ProjectName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.writeError(w, fmt.Errorf("create project: %w", err))
		return
	}
	path := filepath.Join(dir, req.ImageName)

	project, err := s.offload(r.Context(), func() (*registry.Project, error) {
		return s.store(r.Context(), req.ProjectName, path, payload)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("image uploaded", "project", project.Name(), "image", req.ImageName, "images", len(project.Entries))
	s.writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: "ok",
		Token:   uuid.NewString(),
		Project: &project.Descriptor,
	})
}

// store writes payload beside path under a hidden name, verifies it and moves
// it into place, dropping the cached hashes of any image it replaces. A
// payload that fails verification leaves the project untouched
func (s *Server) store(ctx context.Context, project, path string, payload []byte) (*registry.Project, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*"+filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = tmp.Write(payload)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0644)
	}
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	if err := s.verify(tmpPath); err != nil {
		return nil, &imagehash.DecodeError{Source: filepath.Base(path), Err: err}
	}

	for _, t := range types.HashTypes() {
		if err := os.Remove(hashcache.Path(path, t)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("drop cached hash: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	return s.refreshWith(ctx, project, path)
}

// refreshWith refreshes project until path is part of its list. A first
// refresh may join a build that started before path was written, or one that
// a concurrent removal discarded, so it is retried once
func (s *Server) refreshWith(ctx context.Context, project, path string) (*registry.Project, error) {
	var lastErr error
	for range 2 {
		p, err := s.registry.Refresh(ctx, project)
		if err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if slices.ContainsFunc(p.Entries, func(e types.HashEntry) bool { return e.Image == path }) {
			return p, nil
		}
		lastErr = fmt.Errorf("image %s was not indexed", filepath.Base(path))
	}
	return nil, lastErr
}

// offload runs fn on the worker pool when one is configured
func (s *Server) offload(ctx context.Context, fn func() (*registry.Project, error)) (*registry.Project, error) {
	if s.pool == nil {
		return fn()
	}
	return workerpool.Do(ctx, s.pool, fn)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.registry.Projects()
	out := make([]ProjectInfo, len(projects))
	for i, p := range projects {
		out[i] = ProjectInfo{
			ProjectDescriptor: p.Descriptor,
			Images:            len(p.Entries),
			IndexedAt:         p.IndexedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, ProjectsResponse{Success: true, Message: "ok", Projects: out})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.registry.Remove(name) {
		s.writeError(w, &registry.ErrProjectNotFound{Name: name})
		return
	}
	s.logger.Info("project removed", "project", name)
	s.writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "project removed"})
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.writeJSON(w, http.StatusTooManyRequests, StatusResponse{Message: "too many requests"})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("cannot write response", "error", err)
	}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, imagehash.ErrDecode),
		errors.Is(err, registry.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, StatusResponse{Success: false, Message: err.Error()})
}
