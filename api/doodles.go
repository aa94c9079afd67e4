package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/argo/doodlewall/blob"
	"github.com/argo/doodlewall/gallery"
	"github.com/argo/doodlewall/imaging"
	"github.com/google/uuid"
)

// maxBodyBytes bounds JSON request bodies. Base64 inflates the 5MB image
// ceiling by a third.
const maxBodyBytes = 10 << 20

// decodeBody decodes the JSON request body into v and answers the client on
// failure.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		a.respondError(w, http.StatusRequestEntityTooLarge, err, "Request body too large")
		return false
	case err != nil:
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	return true
}

// queryInt returns the integer query parameter key, or def when it is absent
// or malformed.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func (a *API) listDoodles(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", gallery.DefaultPageSize)
	sort := gallery.ParseSort(r.URL.Query().Get("sort"))

	res, err := a.Feed.List(r.Context(), sort, page, limit)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Failed to fetch doodles")
		return
	}
	a.respond(w, http.StatusOK, res)
}

func (a *API) createDoodle(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			ImageData string `json:"imageData"`
			UserName  string `json:"userName" validate:"max=50"`
			SessionID string `json:"sessionId" validate:"omitempty,uuid"`
		}
		doodle struct {
			ID               string                   `json:"id"`
			ImageURL         string                   `json:"imageUrl"`
			WaitlistRank     int64                    `json:"waitlistRank"`
			ModerationStatus gallery.ModerationStatus `json:"moderationStatus"`
		}
		response struct {
			Success bool   `json:"success"`
			Doodle  doodle `json:"doodle"`
		}
	)

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	image, err := imaging.DecodeDataURI(body.ImageData)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Invalid image data")
		return
	}

	d, err := a.Submitter.Submit(r.Context(), gallery.Submission{
		Image:     image,
		UserName:  body.UserName,
		SessionID: body.SessionID,
	})
	switch {
	case errors.Is(err, gallery.ErrMissingImage):
		a.respondError(w, http.StatusBadRequest, err, "Image data required")
		return
	case errors.Is(err, gallery.ErrImageTooLarge):
		a.respondError(w, http.StatusBadRequest, err, "Image too large (max 5MB)")
		return
	case errors.Is(err, gallery.ErrInvalidImage):
		a.respondError(w, http.StatusBadRequest, err, "Invalid image data")
		return
	case errors.Is(err, gallery.ErrDuplicateImage):
		a.respondError(w, http.StatusBadRequest, err, "Duplicate image detected")
		return
	case err != nil:
		a.respondError(w, http.StatusInternalServerError, err, "Failed to upload doodle")
		return
	}

	a.respond(w, http.StatusOK, response{
		Success: true,
		Doodle: doodle{
			ID:               d.ID,
			ImageURL:         d.ImageURL,
			WaitlistRank:     d.WaitlistRank,
			ModerationStatus: d.ModerationStatus,
		},
	})
}

func (a *API) createReaction(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Reaction string `json:"reaction"`
		}
		response struct {
			Success   bool           `json:"success"`
			Reactions gallery.Counts `json:"reactions"`
		}
	)

	doodleID := r.PathValue("doodleID")
	if _, err := uuid.Parse(doodleID); err != nil {
		a.respondError(w, http.StatusNotFound, err, "Doodle not found")
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	counts, err := a.Reactor.React(r.Context(), doodleID, body.Reaction, a.origin(r))
	switch {
	case errors.Is(err, gallery.ErrInvalidReaction):
		a.respondError(w, http.StatusBadRequest, err, "Invalid reaction type")
		return
	case errors.Is(err, gallery.ErrAlreadyReacted):
		a.respondError(w, http.StatusBadRequest, err, "Already reacted")
		return
	case errors.Is(err, gallery.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Doodle not found")
		return
	case err != nil:
		a.respondError(w, http.StatusInternalServerError, err, "Failed to add reaction")
		return
	}

	a.respond(w, http.StatusOK, response{
		Success:   true,
		Reactions: counts,
	})
}

func (a *API) listFeatured(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Doodles []gallery.Doodle `json:"doodles"`
	}

	doodles, err := a.Feed.Featured(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Failed to fetch featured doodles")
		return
	}
	a.respond(w, http.StatusOK, response{Doodles: doodles})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	type response struct {
		gallery.Stats
		ActiveConnections int `json:"activeConnections"`
	}

	s, err := a.Feed.Stats(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Failed to fetch statistics")
		return
	}
	a.respond(w, http.StatusOK, response{
		Stats:             s,
		ActiveConnections: a.Live.Count(),
	})
}

func (a *API) serveImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rc, err := a.Images.Open(r.Context(), name)
	if errors.Is(err, blob.ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err, "Image not found")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not open image")
		return
	}
	defer rc.Close()

	// Names are doodle ids, so the content never changes.
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		a.Logger.Warn("Could not stream image", "name", name, "error", err.Error())
	}
}
