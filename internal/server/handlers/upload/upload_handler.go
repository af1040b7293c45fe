package upload

import (
	"fmt"
	"net/http"

	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/cadencefm/cadence/internal/server/upload"
	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	svc *upload.UploadService
}

func New(svc *upload.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

func (h *UploadHandler) Init(ctx *gin.Context) {
	var req InitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	res, err := h.svc.InitUpload(ctx.Request.Context(), &upload.InitParams{
		FileName:        req.FileName,
		TotalSize:       req.TotalSize,
		ContentType:     req.ContentType,
		ClientID:        middlewares.Client(ctx),
		ExpectedHash:    req.ExpectedHash,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, res)
}

// Chunk stores the raw request body as one chunk
func (h *UploadHandler) Chunk(ctx *gin.Context) {
	var uri ChunkURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("%w: chunk index must be an integer", errs.ErrValidation))
		return
	}

	res, err := h.svc.UploadChunk(ctx.Request.Context(), uri.SessionID, uri.Index, ctx.Request.Body, middlewares.Client(ctx))
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, res)
}

func (h *UploadHandler) Complete(ctx *gin.Context) {
	var uri SessionURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, err := h.svc.FinalizeUpload(ctx.Request.Context(), uri.SessionID, middlewares.Client(ctx))
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, obj)
}

func (h *UploadHandler) Status(ctx *gin.Context) {
	var uri SessionURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	status, err := h.svc.GetStatus(ctx.Request.Context(), uri.SessionID, middlewares.Client(ctx))
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, status)
}

func (h *UploadHandler) Cancel(ctx *gin.Context) {
	var uri SessionURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.svc.CancelUpload(ctx.Request.Context(), uri.SessionID, middlewares.Client(ctx)); err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
