package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"boxoffice/internal/dictionary"
	"boxoffice/internal/metrics"
	"boxoffice/pkg/models"
)

type Handler struct {
	Resolver *Resolver
}

func NewHandler(r *Resolver) *Handler {
	return &Handler{Resolver: r}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/features", h.getFeatures)                  // GET /features?lead=&director=&genre=&budget=
	rg.POST("/features", h.postFeatures)                // POST /features
	rg.GET("/search", h.search)                         // GET /search?field_name=lead&search_term=to
	rg.GET("/dictionaries/:dimension", h.getDictionary) // GET /dictionaries/genre
}

func (h *Handler) getFeatures(c *gin.Context) {
	var missing []string
	for _, p := range []string{"lead", "director", "genre", "budget"} {
		if strings.TrimSpace(c.Query(p)) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameters: " + strings.Join(missing, ", ")})
		return
	}
	budget, err := strconv.ParseFloat(strings.TrimSpace(c.Query("budget")), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "budget must be a number"})
		return
	}
	h.respond(c, Query{
		Lead:     ByValue(strings.TrimSpace(c.Query("lead"))),
		Director: ByValue(strings.TrimSpace(c.Query("director"))),
		Genre:    ByValue(strings.TrimSpace(c.Query("genre"))),
		Budget:   budget,
	})
}

// refParam accepts a JSON string (the category value) or integer (its ID).
type refParam struct {
	Ref
	set bool
}

func (p *refParam) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.Ref, p.set = ByValue(strings.TrimSpace(s)), true
		return nil
	}
	var id int
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("category must be a string or an integer id")
	}
	p.Ref, p.set = ByID(id), true
	return nil
}

type featuresReq struct {
	Lead     refParam `json:"lead"`
	Director refParam `json:"director"`
	Genre    refParam `json:"genre"`
	Budget   *float64 `json:"budget"`
}

func (h *Handler) postFeatures(c *gin.Context) {
	var req featuresReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if !req.Lead.set || !req.Director.set || !req.Genre.set || req.Budget == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead, director, genre and budget are required"})
		return
	}
	h.respond(c, Query{Lead: req.Lead.Ref, Director: req.Director.Ref, Genre: req.Genre.Ref, Budget: *req.Budget})
}

func (h *Handler) respond(c *gin.Context, q Query) {
	snap := h.Resolver.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot loaded"})
		return
	}
	v, err := snap.Resolve(q)
	metrics.RecordResolve(Result(err))

	var (
		unknown      *dictionary.UnknownCategoryError
		insufficient *InsufficientHistoryError
	)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"features": v,
			"names":    models.FeatureNames,
			"digest":   snap.Digest(),
		})
	case errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "unknown_category",
			"dimension": unknown.Dimension,
			"value":     unknown.Value,
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient_history",
			"dimension": insufficient.Dimension,
			"id":        insufficient.ID,
		})
	case errors.Is(err, ErrInvalidBudget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
	}
}

// search mirrors the upload form's autocomplete: a case-insensitive prefix
// match. Missing parameters or an unknown field give no results.
func (h *Handler) search(c *gin.Context) {
	term := c.Query("search_term")
	dim, ok := models.ParseDimension(c.Query("field_name"))
	snap := h.Resolver.Snapshot()
	if !ok || term == "" || snap == nil {
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{}})
		return
	}

	entries := snap.Search(dim, term, parseInt(c.Query("limit"), 0))
	results := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		results = append(results, gin.H{"id": e.ID, string(dim): e.Value})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) getDictionary(c *gin.Context) {
	dim, ok := models.ParseDimension(c.Param("dimension"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dimension"})
		return
	}
	snap := h.Resolver.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot loaded"})
		return
	}
	entries := snap.Entries(dim)
	c.JSON(http.StatusOK, gin.H{
		"dimension": dim,
		"total":     len(entries),
		"items":     entries,
	})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
