package media

import (
	"fmt"
	"io"
	"net/http"

	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/gin-gonic/gin"
)

var errLengthRequired = fmt.Errorf("%w: Content-Length is required", errs.ErrValidation)

type MediaHandler struct {
	svc *media.MediaService
}

func New(svc *media.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

func (h *MediaHandler) Search(ctx *gin.Context) {
	var req SearchRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	objects, err := h.svc.Search(ctx.Request.Context(), req.Query, req.Limit)
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}
	if objects == nil {
		objects = []*media.StoredObject{}
	}

	ctx.PureJSON(http.StatusOK, &SearchResponse{Objects: objects})
}

func (h *MediaHandler) Get(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, err := h.svc.Get(ctx.Request.Context(), uri.ID)
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, obj)
}

// PutManifest attaches the raw request body as the object's HLS playlist
func (h *MediaHandler) PutManifest(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, media.MaxManifestSize+1))
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("read manifest: %w", err))
		return
	}

	if err := h.svc.AttachManifest(ctx.Request.Context(), uri.ID, middlewares.Client(ctx), string(body)); err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// PutSegment stores the raw request body as a transcoded segment of the object
func (h *MediaHandler) PutSegment(ctx *gin.Context) {
	var uri SegmentURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}
	if ctx.Request.ContentLength <= 0 {
		api.AbortWithKind(ctx, errLengthRequired)
		return
	}

	info, err := h.svc.AttachSegment(ctx.Request.Context(), uri.ID, middlewares.Client(ctx), uri.Name, ctx.Request.Body, ctx.Request.ContentLength)
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, &SegmentResponse{
		Key:  info.Key,
		ETag: info.ETag,
		Size: info.Size,
	})
}

// Delete removes an object from every tier. Admin only.
func (h *MediaHandler) Delete(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.svc.Delete(ctx.Request.Context(), uri.ID); err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
