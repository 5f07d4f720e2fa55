package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/similarity"
)

type CompareRequest struct {
	A []string `json:"a"`
	B []string `json:"b"`
}

type GroupRequest struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

type SimilarResponse struct {
	Perfume similarity.Profile          `json:"perfume"`
	Similar []similarity.Recommendation `json:"similar"`
}

// SimilarPerfumes handles GET /perfumes/{perfumeID}/similar.
func (h *Handlers) SimilarPerfumes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "perfumeID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid perfume id")
		return
	}

	target, err := h.perfumes.GetPerfume(r.Context(), id)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	all, err := h.perfumes.ListPerfumes(r.Context())
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	candidates := make([]similarity.Profile, 0, len(all))
	for _, p := range all {
		candidates = append(candidates, profileOf(p))
	}

	opts := similarity.RecommendOptions{}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}

	profile := profileOf(target)
	h.respondJSON(w, http.StatusOK, SimilarResponse{
		Perfume: profile,
		Similar: h.matcher.Recommend(profile, candidates, opts),
	})
}

// ExpandNote handles GET /similarity/expand?note=.
func (h *Handlers) ExpandNote(w http.ResponseWriter, r *http.Request) {
	note := strings.TrimSpace(r.URL.Query().Get("note"))
	if note == "" {
		h.respondError(w, http.StatusBadRequest, "note is required")
		return
	}

	h.respondJSON(w, http.StatusOK, h.matcher.Expand(note))
}

// CompareNotes handles POST /similarity/compare.
func (h *Handlers) CompareNotes(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.respondJSON(w, http.StatusOK, h.matcher.Similarity(req.A, req.B))
}

// AddGroup handles POST /similarity/groups.
func (h *Handlers) AddGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Canonical) == "" {
		h.respondError(w, http.StatusBadRequest, "canonical is required")
		return
	}

	h.matcher.AddGroup(req.Canonical, req.Variants)
	h.logger.Info("synonym group updated", "canonical", req.Canonical, "variants", len(req.Variants))
	h.respondJSON(w, http.StatusOK, h.matcher.Expand(req.Canonical))
}

// ListGroups handles GET /similarity/groups.
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.matcher.Groups())
}

func profileOf(p *models.Perfume) similarity.Profile {
	notes := p.Notes.All()
	if notes == nil {
		notes = []string{}
	}
	return similarity.Profile{
		ID:    p.ID,
		Name:  p.Name,
		Brand: p.BrandName,
		Notes: notes,
	}
}
