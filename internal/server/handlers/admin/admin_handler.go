package admin

import (
	"log/slog"
	"net/http"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/cadencefm/cadence/internal/server/tier"
	"github.com/gin-gonic/gin"
)

type MigrateRequest struct {
	Tier blob.Tier `json:"tier" binding:"required"`
}

type MigrateResponse struct {
	ID   string    `json:"id"`
	Tier blob.Tier `json:"tier"`
}

type AdminHandler struct {
	tiers *tier.TierService
}

func New(tiers *tier.TierService) *AdminHandler {
	return &AdminHandler{tiers: tiers}
}

// SweepTiers runs one optimizer pass and reports its summary
func (h *AdminHandler) SweepTiers(ctx *gin.Context) {
	summary, err := h.tiers.Run(ctx.Request.Context())
	if summary != nil {
		slog.Info("tier sweep", "client", middlewares.Client(ctx), "scanned", summary.Scanned, "migrated", summary.Migrated, "failed", summary.Failed)
	}
	if err != nil {
		if ctx.Request.Context().Err() != nil {
			// client went away mid pass
			ctx.Abort()
			return
		}
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, summary)
}

// MigrateObject moves one object to the requested tier right away
func (h *AdminHandler) MigrateObject(ctx *gin.Context) {
	var req MigrateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	id := ctx.Param("id")
	if err := h.tiers.MigrateTier(ctx.Request.Context(), id, req.Tier); err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &MigrateResponse{ID: id, Tier: req.Tier})
}
