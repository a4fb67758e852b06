package reconcile

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"boxoffice/internal/auth"
	"boxoffice/pkg/logging"
)

type Handler struct {
	Pipeline *Pipeline
	Tokens   auth.TokenService
}

func NewHandler(p *Pipeline, tokens auth.TokenService) *Handler {
	return &Handler{Pipeline: p, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reconcile", auth.RequireScope(h.Tokens, auth.ScopeReconcile), h.reconcile)
}

func (h *Handler) reconcile(c *gin.Context) {
	if claims := auth.MustGetClaims(c); claims != nil {
		logging.Component("reconcile").Info().Str("operator", claims.Operator).Msg("run requested")
	}

	rep, err := h.Pipeline.Run(c.Request.Context())
	var sf *StorageFailure
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rep)
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &sf):
		c.JSON(http.StatusBadGateway, gin.H{"error": sf.Error(), "report": rep})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
	}
}
