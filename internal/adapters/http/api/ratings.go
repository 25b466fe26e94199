package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/rating"
)

// LeagueSegment is the entity path segment addressing the league average of
// a role. It lies in the reserved id namespace, so it never names a player.
const LeagueSegment = model.ReservedPrefix + "league"

// RatingsHandler handles rating lookups.
type RatingsHandler struct {
	deps RatingsReader
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingsReader) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

type handRating struct {
	Hand        model.Hand      `json:"hand"`
	Appearances int64           `json:"appearances"`
	Timescales  []int           `json:"timescales"`
	Vectors     []rating.Vector `json:"vectors"`
}

type ratingsResponse struct {
	Role    string       `json:"role"`
	Entity  string       `json:"entity"`
	Ratings []handRating `json:"ratings"`
}

// HandleGetRatings handles GET /ratings/{role}/{entity}. The entity
// LeagueSegment addresses the league average of the role; other reserved ids
// are bad requests. Hands without a stored rating
// are left out; a 404 means none were found.
func (h *RatingsHandler) HandleGetRatings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ratings/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: want /ratings/{role}/{entity}", ErrBadRequest))
		return
	}
	role, err := model.ParseRole(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	entity := parts[1]
	switch {
	case entity == LeagueSegment:
		entity = rating.LeagueEntity
	case strings.HasPrefix(entity, model.ReservedPrefix):
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: entity %q is reserved", ErrBadRequest, entity))
		return
	}

	resp := ratingsResponse{Role: role.String(), Entity: parts[1]}
	for _, hand := range model.Buckets() {
		snap, err := h.deps.Get(r.Context(), rating.Key{Entity: entity, Role: role, Hand: hand})
		if isNotFound(err) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		resp.Ratings = append(resp.Ratings, handRating{
			Hand:        hand,
			Appearances: snap.Appearances,
			Timescales:  snap.Timescales,
			Vectors:     snap.Vectors,
		})
	}
	if len(resp.Ratings) == 0 {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w for %s %s", ErrNoRatings, role, parts[1]))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
