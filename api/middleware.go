package api

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
)

// recoverPanics answers 500 when a handler panics.
func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				a.Logger.Error("Panic recovered", "panic", fmt.Sprint(v), "stack", string(debug.Stack()))
				a.respondError(w, http.StatusInternalServerError, fmt.Errorf("panic: %v", v), "Something went wrong!")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors sets the CORS headers for allowed origins and answers preflight
// requests.
func (a *API) cors(next http.Handler) http.Handler {
	allowAll := len(a.AllowOrigins) == 0
	origins := make(map[string]struct{}, len(a.AllowOrigins))
	for _, o := range a.AllowOrigins {
		origins[strings.TrimSpace(o)] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := origins[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			} else if allowAll {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureHeaders sets the response headers that stop MIME sniffing and
// framing.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests from an origin once it exceeds rl. Limiter
// failures let the request through.
func (a *API) rateLimit(scope string, rl RateLimit, msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.Limit <= 0 || a.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		origin := a.origin(r)
		ok, err := a.Limiter.Allow(r.Context(), scope+":"+origin, rl.Limit, rl.Window)
		if err != nil {
			a.Logger.Error("Could not check rate limit", "scope", scope, "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			a.respondError(w, http.StatusTooManyRequests, fmt.Errorf("%s limit exceeded for %s", scope, origin), msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// origin returns the client address used for rate limits and reaction
// deduplication.
func (a *API) origin(r *http.Request) string {
	if a.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
