package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/argo/doodlewall/api/validator"
	"github.com/argo/doodlewall/gallery"
)

// A Submitter runs uploads through the submission pipeline.
type Submitter interface {
	Submit(ctx context.Context, s gallery.Submission) (gallery.Doodle, error)
}

// A Reactor records reactions.
type Reactor interface {
	React(ctx context.Context, doodleID, kind, origin string) (gallery.Counts, error)
}

// A Feed serves the read side of the gallery.
type Feed interface {
	List(ctx context.Context, sort gallery.Sort, page, limit int) (gallery.Page, error)
	Featured(ctx context.Context) ([]gallery.Doodle, error)
	Stats(ctx context.Context) (gallery.Stats, error)
}

// A Live serves the WebSocket channel and reports its audience.
type Live interface {
	http.Handler
	Count() int
}

// A Limiter counts hits of key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// An ImageSource opens stored images by name.
type ImageSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// RateLimit allows Limit hits per origin in every Window. A zero Limit
// disables the check.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// API provides the REST endpoints, the image files and the live channel.
type API struct {
	Logger    *slog.Logger
	Submitter Submitter
	Reactor   Reactor
	Feed      Feed
	Live      Live
	Images    ImageSource
	Limiter   Limiter
	Val       *validator.Validator

	UploadLimit   RateLimit
	ReactionLimit RateLimit
	// AllowOrigins lists the CORS origins. Empty allows any origin.
	AllowOrigins []string
	// TrustProxy takes the client origin from X-Forwarded-For.
	TrustProxy bool
	// Diagnostic adds the underlying error to 500 responses.
	Diagnostic bool

	once    sync.Once
	handler http.Handler
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.health)
	mux.HandleFunc("GET /api/doodles", a.listDoodles)
	mux.Handle("POST /api/doodles", a.rateLimit("upload", a.UploadLimit, "Too many uploads, please try again later", http.HandlerFunc(a.createDoodle)))
	mux.HandleFunc("GET /api/doodles/featured", a.listFeatured)
	mux.Handle("POST /api/doodles/{doodleID}/react", a.rateLimit("reaction", a.ReactionLimit, "Too many reactions, please slow down", http.HandlerFunc(a.createReaction)))
	mux.HandleFunc("GET /api/stats", a.stats)
	mux.HandleFunc("GET /uploads/{name}", a.serveImage)
	mux.Handle("GET /ws", a.Live)

	a.handler = a.recoverPanics(secureHeaders(a.cors(mux)))
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.handler.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error   string `json:"error"`
		Message string `json:"message,omitempty"`
	}
	res := response{Error: msg}
	if status >= http.StatusInternalServerError {
		a.Logger.Error("Error", "error", err.Error())
		if a.Diagnostic {
			res.Message = err.Error()
		}
	} else {
		a.Logger.Info("Request rejected", "status", status, "error", err.Error())
	}
	a.respond(w, status, res)
}

func (a *API) validateBody(w http.ResponseWriter, s any) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status              string    `json:"status"`
		Timestamp           time.Time `json:"timestamp"`
		LiveConnectionCount int       `json:"liveConnectionCount"`
	}
	a.respond(w, http.StatusOK, response{
		Status:              "healthy",
		Timestamp:           time.Now().UTC(),
		LiveConnectionCount: a.Live.Count(),
	})
}
