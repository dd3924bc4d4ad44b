package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jo-hoe/recipeimport/internal/auth"
	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/jobs"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/metadata"
	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/pipeline"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

// MetadataFetcher returns best-effort title, source and image for a URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string, p platform.Platform) metadata.Metadata
}

// ImagePersister copies a remote image into blob storage; "" on failure.
// Delete removes a copy whose recipe could not be created.
type ImagePersister interface {
	Persist(ctx context.Context, remoteURL, recipeID string) string
	Delete(ctx context.Context, recipeID string) bool
}

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Auth     auth.Verifier
	Jobs     *jobs.Store
	Records  recipes.Store
	Runner   *jobs.Runner
	Pipeline *pipeline.Worker
	Metadata MetadataFetcher
	Images   ImagePersister
	Metrics  *metrics.Metrics

	// BlobHandler, when set, is mounted under BlobPrefix to serve locally
	// stored images.
	BlobPrefix  string
	BlobHandler http.Handler

	// NewID generates recipe ids; defaults to random UUIDs.
	NewID func() string
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	svc.Log = logging.OrDiscard(svc.Log)
	if svc.NewID == nil {
		svc.NewID = uuid.NewString
	}

	r := mux.NewRouter()
	r.HandleFunc(common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if svc.Metrics != nil && svc.Cfg.Metrics.Enabled {
		r.Handle(svc.Cfg.Metrics.Path, svc.Metrics.Handler()).Methods(http.MethodGet)
	}
	if svc.BlobHandler != nil && svc.BlobPrefix != "" {
		r.PathPrefix(strings.TrimRight(svc.BlobPrefix, "/") + "/").Handler(svc.BlobHandler).Methods(http.MethodGet, http.MethodHead)
	}

	r.Handle(common.PathImport, svc.withCommon(svc.handleImport)).Methods(http.MethodPost)
	r.Handle(common.PathRecipeStream, svc.withCommon(svc.handleStream)).Methods(http.MethodGet)
	r.Handle(common.PathRecipe, svc.withCommon(svc.handleGetRecipe)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(r), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

// withCommon caps the request body and authenticates the caller.
func (svc *Service) withCommon(next http.HandlerFunc) http.Handler {
	authed := auth.Middleware(svc.Auth, writeError)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if max := safeInt64(svc.Cfg.Server.MaxBodySize); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		authed.ServeHTTP(w, r)
	})
}

type importRequest struct {
	URL        string `json:"url"`
	SourceType string `json:"source_type,omitempty"`
}

type importResponse struct {
	RecipeID   string  `json:"recipe_id"`
	Status     string  `json:"status"`
	Title      string  `json:"title"`
	SourceName *string `json:"source_name"`
	SourceURL  string  `json:"source_url"`
	ImageURL   *string `json:"image_url"`
	Platform   string  `json:"platform"`
}

func (svc *Service) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	rawURL := strings.TrimSpace(body.URL)
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	p := platform.Classify(rawURL)
	sourceType := strings.TrimSpace(body.SourceType)
	if sourceType == "" {
		sourceType = string(p.SourceType())
	}
	recipeID := svc.NewID()
	log := svc.Log.With("recipe_id", recipeID, "platform", string(p))

	meta := svc.Metadata.Fetch(r.Context(), rawURL, p)
	imageURL := meta.ImageURL
	imagePersisted := false
	if imageURL != "" && svc.Images != nil {
		if persisted := svc.Images.Persist(r.Context(), imageURL, recipeID); persisted != "" {
			imageURL = persisted
			imagePersisted = true
		}
	}

	rec := &recipes.Record{
		ID:          recipeID,
		UserID:      userID,
		Title:       meta.Title,
		SourceType:  sourceType,
		SourceURL:   rawURL,
		SourceName:  meta.SourceName,
		ImageURL:    imageURL,
		Status:      recipes.StatusImporting,
		Ingredients: []recipes.Ingredient{},
		Steps:       []string{},
		Tags:        []string{},
	}
	if err := svc.Records.Create(r.Context(), rec); err != nil {
		log.Error("create recipe", "err", err)
		if imagePersisted && !svc.Images.Delete(context.WithoutCancel(r.Context()), recipeID) {
			log.Warn("orphaned recipe image left in storage")
		}
		writeError(w, http.StatusInternalServerError, "Failed to create recipe")
		return
	}

	svc.Jobs.Create(recipeID, userID)
	task := svc.Pipeline.Task(pipeline.WorkItem{RecipeID: recipeID, URL: rawURL, Platform: p})
	if err := svc.Runner.Go(recipeID, task); err != nil {
		log.Warn("pipeline not started", "err", err)
		svc.Jobs.Fail(recipeID, common.ReasonInternalExtraction)
		if mErr := svc.Records.MarkFailed(r.Context(), recipeID); mErr != nil {
			log.Warn("mark record failed", "err", mErr)
		}
	}
	svc.Metrics.ImportAccepted(string(p))
	log.Info("import accepted", "source_type", sourceType)

	writeJSON(w, http.StatusOK, importResponse{
		RecipeID:   recipeID,
		Status:     string(recipes.StatusImporting),
		Title:      meta.Title,
		SourceName: optional(meta.SourceName),
		SourceURL:  rawURL,
		ImageURL:   optional(imageURL),
		Platform:   string(p),
	})
}

func (svc *Service) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, http.StatusBadRequest, "Recipe ID is required")
		return
	}
	userID, _ := auth.UserFromContext(r.Context())

	rec, err := svc.Records.Get(r.Context(), id)
	switch {
	case errors.Is(err, recipes.ErrNotFound):
		writeError(w, http.StatusNotFound, common.ReasonRecipeNotFound)
		return
	case err != nil:
		svc.Log.Error("get recipe", "recipe_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, common.ReasonInternal)
		return
	}
	if rec.UserID != userID {
		writeError(w, http.StatusNotFound, common.ReasonRecipeNotFound)
		return
	}
	res := rec.Result()
	rec.Ingredients, rec.Steps, rec.Tags = res.Ingredients, res.Steps, res.Tags
	writeJSON(w, http.StatusOK, rec)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	log = logging.OrDiscard(log)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *writeWrap) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.code = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *writeWrap) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush lets event streams push through the wrapper.
func (w *writeWrap) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *writeWrap) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
