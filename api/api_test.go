package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/argo/doodlewall/api/validator"
	"github.com/argo/doodlewall/blob"
	"github.com/argo/doodlewall/gallery"
	"github.com/neilotoole/slogt"
)

const testDoodleID = "84bd9af7-79e6-4027-b284-9d5d875efd5b"

func testDoodle() gallery.Doodle {
	return gallery.Doodle{
		ID:               testDoodleID,
		ImageURL:         "/uploads/" + testDoodleID + ".png",
		Fingerprint:      "secret-hash",
		UserName:         "Ada",
		SessionID:        "secret-session",
		WaitlistRank:     7,
		Reactions:        gallery.Counts{Like: 2},
		ModerationStatus: gallery.StatusApproved,
		CreatedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// newTestAPI returns an API whose collaborators are unset fakes. Tests fill
// in the behavior they exercise.
func newTestAPI(t *testing.T) *API {
	return &API{
		Logger:    slogt.New(t),
		Submitter: &testsubmitter{T: t},
		Reactor:   &testreactor{T: t},
		Feed:      &testfeed{T: t},
		Live:      &testlive{count: 3},
		Images:    &testimages{T: t},
		Val:       validator.New(),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *http.Response {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_health(t *testing.T) {
	api := newTestAPI(t)

	resp := do(t, api, "GET", "/health", "")
	checkStatus(t, resp.StatusCode, 200)

	var body struct {
		Status              string    `json:"status"`
		Timestamp           time.Time `json:"timestamp"`
		LiveConnectionCount int       `json:"liveConnectionCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.LiveConnectionCount != 3 {
		t.Errorf("Got %+v, want healthy with 3 connections", body)
	}
	if time.Since(body.Timestamp) > time.Minute {
		t.Errorf("Got stale timestamp %v", body.Timestamp)
	}
}

func TestAPI_listDoodles(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		diagnostic bool
		list       func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error)
		wantStatus int
		wantBody   string
	}{
		{
			name: "FeedError",
			list: func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error) {
				return gallery.Page{}, errors.New("something went wrong")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Failed to fetch doodles"
			}`,
		},
		{
			name:       "FeedErrorDiagnostic",
			diagnostic: true,
			list: func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error) {
				return gallery.Page{}, errors.New("something went wrong")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Failed to fetch doodles",
				"message": "something went wrong"
			}`,
		},
		{
			name:  "Defaults",
			query: "?page=abc",
			list: func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error) {
				if sort != gallery.SortRecent || page != 1 || limit != 20 {
					t.Errorf("Got sort %q page %d limit %d, want recent 1 20", sort, page, limit)
				}
				return gallery.Page{
					Doodles:    []gallery.Doodle{},
					Pagination: gallery.Pagination{Page: 1, Limit: 20},
				}, nil
			},
			wantStatus: 200,
			wantBody: `{
				"doodles": [],
				"pagination": {"page": 1, "limit": 20, "total": 0, "pages": 0, "hasMore": false}
			}`,
		},
		{
			name:  "Page",
			query: "?page=2&limit=1&sort=popular",
			list: func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error) {
				if sort != gallery.SortPopular || page != 2 || limit != 1 {
					t.Errorf("Got sort %q page %d limit %d, want popular 2 1", sort, page, limit)
				}
				return gallery.Page{
					Doodles:    []gallery.Doodle{testDoodle()},
					Pagination: gallery.Pagination{Page: 2, Limit: 1, Total: 3, Pages: 3, HasMore: true},
				}, nil
			},
			wantStatus: 200,
			wantBody: `{
				"doodles": [
					{
						"id": "84bd9af7-79e6-4027-b284-9d5d875efd5b",
						"imageUrl": "/uploads/84bd9af7-79e6-4027-b284-9d5d875efd5b.png",
						"userName": "Ada",
						"waitlistRank": 7,
						"reactions": {"like": 2, "love": 0, "fire": 0, "laugh": 0},
						"featured": false,
						"moderationStatus": "approved",
						"createdAt": "2024-01-01T00:00:00Z",
						"updatedAt": "2024-01-02T00:00:00Z"
					}
				],
				"pagination": {"page": 2, "limit": 1, "total": 3, "pages": 3, "hasMore": true}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.Feed = &testfeed{T: t, list: tt.list}
			api.Diagnostic = tt.diagnostic

			resp := do(t, api, "GET", "/api/doodles"+tt.query, "")
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_createDoodle(t *testing.T) {
	tests := []struct {
		name        string
		req         string
		submit      func(t *testing.T, s gallery.Submission) (gallery.Doodle, error)
		wantStatus  int
		wantBody    string
		containsLog string
	}{
		{
			name:       "InvalidJSON",
			req:        `not json`,
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name: "InvalidFields",
			req: `{
				"imageData": "data:image/png;base64,AAAA",
				"userName": "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijk",
				"sessionId": "nope"
			}`,
			wantStatus: 400,
			wantBody: `{
				"errors": [
					{"field": "userName", "message": "must be at most 50 characters"},
					{"field": "sessionId", "message": "must be a UUID"}
				]
			}`,
		},
		{
			name: "InvalidBase64",
			req: `{
				"imageData": "data:image/png;base64,!!!"
			}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Invalid image data"
			}`,
		},
		{
			name: "MissingImage",
			req:  `{}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				if len(s.Image) != 0 {
					t.Errorf("Got %d image bytes, want none", len(s.Image))
				}
				return gallery.Doodle{}, gallery.ErrMissingImage
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Image data required"
			}`,
		},
		{
			name: "TooLarge",
			req:  `{"imageData": "AAAA"}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				return gallery.Doodle{}, gallery.ErrImageTooLarge
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Image too large (max 5MB)"
			}`,
		},
		{
			name: "Undecodable",
			req:  `{"imageData": "AAAA"}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				return gallery.Doodle{}, fmt.Errorf("%w: unknown format", gallery.ErrInvalidImage)
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Invalid image data"
			}`,
		},
		{
			name: "Duplicate",
			req:  `{"imageData": "AAAA"}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				return gallery.Doodle{}, gallery.ErrDuplicateImage
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Duplicate image detected"
			}`,
		},
		{
			name: "StoreError",
			req:  `{"imageData": "AAAA"}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				return gallery.Doodle{}, errors.New("connection refused")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Failed to upload doodle"
			}`,
			containsLog: "connection refused",
		},
		{
			name: "OK",
			req: `{
				"imageData": "data:image/png;base64,aGVsbG8=",
				"userName": "Ada",
				"sessionId": "0b6f1f0e-6d0a-4c1e-9a3e-1f2d3c4b5a69"
			}`,
			submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
				if string(s.Image) != "hello" {
					t.Errorf("Got image %q, want hello", s.Image)
				}
				if s.UserName != "Ada" || s.SessionID != "0b6f1f0e-6d0a-4c1e-9a3e-1f2d3c4b5a69" {
					t.Errorf("Got submission %+v", s)
				}
				return testDoodle(), nil
			},
			wantStatus: 200,
			wantBody: `{
				"success": true,
				"doodle": {
					"id": "84bd9af7-79e6-4027-b284-9d5d875efd5b",
					"imageUrl": "/uploads/84bd9af7-79e6-4027-b284-9d5d875efd5b.png",
					"waitlistRank": 7,
					"moderationStatus": "approved"
				}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			api := newTestAPI(t)
			api.Logger = slog.New(slog.NewTextHandler(buf, nil))
			api.Submitter = &testsubmitter{T: t, submit: tt.submit}

			resp := do(t, api, "POST", "/api/doodles", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
			checkLog(t, buf, tt.containsLog)
		})
	}
}

func TestAPI_createReaction(t *testing.T) {
	tests := []struct {
		name       string
		doodleID   string
		req        string
		react      func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "NotUUID",
			doodleID:   "42",
			req:        `{"reaction": "like"}`,
			wantStatus: 404,
			wantBody: `{
				"error": "Doodle not found"
			}`,
		},
		{
			name:     "InvalidReaction",
			doodleID: testDoodleID,
			req:      `{"reaction": "angry"}`,
			react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
				return gallery.Counts{}, gallery.ErrInvalidReaction
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Invalid reaction type"
			}`,
		},
		{
			name:     "AlreadyReacted",
			doodleID: testDoodleID,
			req:      `{"reaction": "like"}`,
			react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
				return gallery.Counts{}, gallery.ErrAlreadyReacted
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Already reacted"
			}`,
		},
		{
			name:     "NotFound",
			doodleID: testDoodleID,
			req:      `{"reaction": "like"}`,
			react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
				return gallery.Counts{}, gallery.ErrNotFound
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Doodle not found"
			}`,
		},
		{
			name:     "StoreError",
			doodleID: testDoodleID,
			req:      `{"reaction": "like"}`,
			react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
				return gallery.Counts{}, errors.New("deadlock detected")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Failed to add reaction"
			}`,
		},
		{
			name:     "OK",
			doodleID: testDoodleID,
			req:      `{"reaction": "fire"}`,
			react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
				if doodleID != testDoodleID || kind != "fire" {
					t.Errorf("Got doodle %q kind %q", doodleID, kind)
				}
				if origin != "127.0.0.1" {
					t.Errorf("Got origin %q, want 127.0.0.1", origin)
				}
				return gallery.Counts{Like: 2, Fire: 1}, nil
			},
			wantStatus: 200,
			wantBody: `{
				"success": true,
				"reactions": {"like": 2, "love": 0, "fire": 1, "laugh": 0}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.Reactor = &testreactor{T: t, react: tt.react}

			resp := do(t, api, "POST", "/api/doodles/"+tt.doodleID+"/react", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_listFeatured(t *testing.T) {
	api := newTestAPI(t)
	api.Feed = &testfeed{T: t, featured: func(t *testing.T) ([]gallery.Doodle, error) {
		return []gallery.Doodle{}, nil
	}}

	resp := do(t, api, "GET", "/api/doodles/featured", "")
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{"doodles": []}`)
}

func TestAPI_stats(t *testing.T) {
	tests := []struct {
		name       string
		stats      func(t *testing.T) (gallery.Stats, error)
		wantStatus int
		wantBody   string
	}{
		{
			name: "OK",
			stats: func(t *testing.T) (gallery.Stats, error) {
				return gallery.Stats{TotalDoodles: 4, UniqueArtists: 2, TotalReactions: 9}, nil
			},
			wantStatus: 200,
			wantBody: `{
				"totalDoodles": 4,
				"uniqueArtists": 2,
				"totalReactions": 9,
				"activeConnections": 3
			}`,
		},
		{
			name: "Error",
			stats: func(t *testing.T) (gallery.Stats, error) {
				return gallery.Stats{}, errors.New("timeout")
			},
			wantStatus: 500,
			wantBody: `{
				"error": "Failed to fetch statistics"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.Feed = &testfeed{T: t, stats: tt.stats}

			resp := do(t, api, "GET", "/api/stats", "")
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_serveImage(t *testing.T) {
	api := newTestAPI(t)
	api.Images = &testimages{T: t, open: func(t *testing.T, name string) (io.ReadCloser, error) {
		if name != "a.png" {
			return nil, blob.ErrNotFound
		}
		return io.NopCloser(strings.NewReader("png bytes")), nil
	}}

	resp := do(t, api, "GET", "/uploads/a.png", "")
	checkStatus(t, resp.StatusCode, 200)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Got Content-Type %q, want image/png", ct)
	}
	if b, _ := io.ReadAll(resp.Body); string(b) != "png bytes" {
		t.Errorf("Got body %q", b)
	}

	resp = do(t, api, "GET", "/uploads/b.png", "")
	checkStatus(t, resp.StatusCode, 404)
	checkBody(t, resp, `{"error": "Image not found"}`)
}

func TestAPI_rateLimit(t *testing.T) {
	t.Run("Exceeded", func(t *testing.T) {
		api := newTestAPI(t)
		api.UploadLimit = RateLimit{Limit: 5, Window: 5 * time.Minute}
		api.Limiter = &testlimiter{T: t, allow: func(t *testing.T, key string, limit int, window time.Duration) (bool, error) {
			if key != "upload:127.0.0.1" || limit != 5 || window != 5*time.Minute {
				t.Errorf("Got key %q limit %d window %v", key, limit, window)
			}
			return false, nil
		}}

		resp := do(t, api, "POST", "/api/doodles", `{"imageData": "AAAA"}`)
		checkStatus(t, resp.StatusCode, 429)
		checkBody(t, resp, `{"error": "Too many uploads, please try again later"}`)
	})

	t.Run("ReactionsExceeded", func(t *testing.T) {
		api := newTestAPI(t)
		api.ReactionLimit = RateLimit{Limit: 30, Window: time.Minute}
		api.Limiter = &testlimiter{T: t, allow: func(t *testing.T, key string, limit int, window time.Duration) (bool, error) {
			return false, nil
		}}

		resp := do(t, api, "POST", "/api/doodles/"+testDoodleID+"/react", `{"reaction": "like"}`)
		checkStatus(t, resp.StatusCode, 429)
		checkBody(t, resp, `{"error": "Too many reactions, please slow down"}`)
	})

	t.Run("FailsOpen", func(t *testing.T) {
		api := newTestAPI(t)
		api.UploadLimit = RateLimit{Limit: 5, Window: 5 * time.Minute}
		api.Limiter = &testlimiter{T: t, allow: func(t *testing.T, key string, limit int, window time.Duration) (bool, error) {
			return false, errors.New("redis down")
		}}
		api.Submitter = &testsubmitter{T: t, submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
			return testDoodle(), nil
		}}

		resp := do(t, api, "POST", "/api/doodles", `{"imageData": "AAAA"}`)
		checkStatus(t, resp.StatusCode, 200)
	})

	t.Run("TrustProxy", func(t *testing.T) {
		api := newTestAPI(t)
		api.TrustProxy = true
		api.ReactionLimit = RateLimit{Limit: 30, Window: time.Minute}
		api.Limiter = &testlimiter{T: t, allow: func(t *testing.T, key string, limit int, window time.Duration) (bool, error) {
			if key != "reaction:203.0.113.9" {
				t.Errorf("Got key %q, want the forwarded origin", key)
			}
			return true, nil
		}}
		api.Reactor = &testreactor{T: t, react: func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error) {
			if origin != "203.0.113.9" {
				t.Errorf("Got origin %q, want 203.0.113.9", origin)
			}
			return gallery.Counts{Like: 1}, nil
		}}

		srv := httptest.NewServer(api)
		defer srv.Close()
		req, _ := http.NewRequest("POST", srv.URL+"/api/doodles/"+testDoodleID+"/react", strings.NewReader(`{"reaction": "like"}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		checkStatus(t, resp.StatusCode, 200)
	})
}

func TestAPI_cors(t *testing.T) {
	tests := []struct {
		name         string
		allowOrigins []string
		method       string
		origin       string
		wantStatus   int
		wantAllow    string
		wantCreds    string
	}{
		{
			name:         "Preflight",
			allowOrigins: []string{"https://doodles.example"},
			method:       "OPTIONS",
			origin:       "https://doodles.example",
			wantStatus:   204,
			wantAllow:    "https://doodles.example",
			wantCreds:    "true",
		},
		{
			name:         "Allowed",
			allowOrigins: []string{"https://doodles.example"},
			method:       "GET",
			origin:       "https://doodles.example",
			wantStatus:   200,
			wantAllow:    "https://doodles.example",
			wantCreds:    "true",
		},
		{
			name:         "Disallowed",
			allowOrigins: []string{"https://doodles.example"},
			method:       "GET",
			origin:       "https://evil.example",
			wantStatus:   200,
		},
		{
			name:       "AllowAllWithoutCredentials",
			method:     "GET",
			origin:     "https://anyone.example",
			wantStatus: 200,
			wantAllow:  "https://anyone.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			api.AllowOrigins = tt.allowOrigins
			api.Feed = &testfeed{T: t, featured: func(t *testing.T) ([]gallery.Doodle, error) {
				return nil, nil
			}}
			srv := httptest.NewServer(api)
			defer srv.Close()

			req, _ := http.NewRequest(tt.method, srv.URL+"/api/doodles/featured", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Got Access-Control-Allow-Origin %q, want %q", got, tt.wantAllow)
			}
			if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Got Access-Control-Allow-Credentials %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

func TestAPI_secureHeaders(t *testing.T) {
	api := newTestAPI(t)

	resp := do(t, api, "GET", "/health", "")
	checkStatus(t, resp.StatusCode, 200)
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("Got %s %q, want %q", k, got, v)
		}
	}
}

func TestAPI_recoverPanics(t *testing.T) {
	api := newTestAPI(t)
	api.Submitter = &testsubmitter{T: t, submit: func(t *testing.T, s gallery.Submission) (gallery.Doodle, error) {
		panic("boom")
	}}

	resp := do(t, api, "POST", "/api/doodles", `{"imageData": "AAAA"}`)
	checkStatus(t, resp.StatusCode, 500)
	checkBody(t, resp, `{"error": "Something went wrong!"}`)
}

type testsubmitter struct {
	T      *testing.T
	submit func(t *testing.T, s gallery.Submission) (gallery.Doodle, error)
}

func (s *testsubmitter) Submit(_ context.Context, sub gallery.Submission) (gallery.Doodle, error) {
	if s.submit == nil {
		s.T.Error("Unexpected call to Submit")
		return gallery.Doodle{}, errors.New("unexpected call")
	}
	return s.submit(s.T, sub)
}

type testreactor struct {
	T     *testing.T
	react func(t *testing.T, doodleID, kind, origin string) (gallery.Counts, error)
}

func (r *testreactor) React(_ context.Context, doodleID, kind, origin string) (gallery.Counts, error) {
	if r.react == nil {
		r.T.Error("Unexpected call to React")
		return gallery.Counts{}, errors.New("unexpected call")
	}
	return r.react(r.T, doodleID, kind, origin)
}

type testfeed struct {
	T        *testing.T
	list     func(t *testing.T, sort gallery.Sort, page, limit int) (gallery.Page, error)
	featured func(t *testing.T) ([]gallery.Doodle, error)
	stats    func(t *testing.T) (gallery.Stats, error)
}

func (f *testfeed) List(_ context.Context, sort gallery.Sort, page, limit int) (gallery.Page, error) {
	return f.list(f.T, sort, page, limit)
}

func (f *testfeed) Featured(_ context.Context) ([]gallery.Doodle, error) {
	return f.featured(f.T)
}

func (f *testfeed) Stats(_ context.Context) (gallery.Stats, error) {
	return f.stats(f.T)
}

type testlive struct {
	count int
}

func (l *testlive) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (l *testlive) Count() int {
	return l.count
}

type testlimiter struct {
	T     *testing.T
	allow func(t *testing.T, key string, limit int, window time.Duration) (bool, error)
}

func (l *testlimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allow(l.T, key, limit, window)
}

type testimages struct {
	T    *testing.T
	open func(t *testing.T, name string) (io.ReadCloser, error)
}

func (i *testimages) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return i.open(i.T, name)
}

func checkStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("Got HTTP status %d, want %d", got, want)
	}
}

func checkBody(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	gotBody := normalizeJSON(t, resp.Body)
	wantBody := normalizeJSON(t, bytes.NewReader([]byte(want)))
	if gotBody != wantBody {
		t.Errorf("Body does not match\nGot\n  %s\n\nWant\n  %s", gotBody, wantBody)
	}
}

func checkLog(t *testing.T, buffer *bytes.Buffer, want string) {
	t.Helper()

	if s := buffer.String(); want != "" && !strings.Contains(s, want) {
		t.Errorf("Log does not contain  %s\n", want)
	}
}

// normalizeJSON compacts then indents so formatting differences between the
// expected literals and the encoder output do not matter.
func normalizeJSON(t *testing.T, r io.Reader) string {
	t.Helper()
	var compact, buf bytes.Buffer
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Could not read JSON: %v", err)
	}
	if err := json.Compact(&compact, b); err != nil {
		t.Fatalf("Could not compact JSON: %v", err)
	}
	if err := json.Indent(&buf, compact.Bytes(), "  ", "  "); err != nil {
		t.Fatalf("Could not indent JSON: %v", err)
	}
	return strings.TrimSpace(buf.String())
}
