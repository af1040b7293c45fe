package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cadencefm/cadence/internal/server/accesslog"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/server/stream"
	"github.com/gin-gonic/gin"
)

var errBadToken = fmt.Errorf("%w: missing or invalid stream token", errs.ErrUnauthorized)

type StreamHandler struct {
	svc      *stream.StreamService
	identity *ratelimit.Identifier
}

// New keys access log entries with identity, the same identifier the rate limiter uses
func New(svc *stream.StreamService, identity *ratelimit.Identifier) *StreamHandler {
	return &StreamHandler{svc: svc, identity: identity}
}

// Object serves the source file, honouring single byte ranges
func (h *StreamHandler) Object(ctx *gin.Context) {
	id, ok := h.authorize(ctx, accesslog.KindObject)
	if !ok {
		return
	}

	resp, err := h.svc.ServeObject(ctx.Request.Context(), id, ctx.GetHeader("Range"))
	if err != nil {
		var rangeErr *stream.RangeError
		if errors.As(err, &rangeErr) {
			ctx.Header("Content-Range", stream.UnsatisfiedRange(rangeErr.Size))
		}
		api.AbortWithKind(ctx, err)
		return
	}

	write(ctx, resp)
}

func (h *StreamHandler) Playlist(ctx *gin.Context) {
	id, ok := h.authorize(ctx, accesslog.KindPlaylist)
	if !ok {
		return
	}

	resp, err := h.svc.ServePlaylist(ctx.Request.Context(), id)
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	write(ctx, resp)
}

func (h *StreamHandler) Segment(ctx *gin.Context) {
	id, ok := h.authorize(ctx, accesslog.KindSegment)
	if !ok {
		return
	}

	resp, err := h.svc.ServeSegment(ctx.Request.Context(), id, ctx.Param("name"))
	if err != nil {
		api.AbortWithKind(ctx, err)
		return
	}

	write(ctx, resp)
}

// authorize checks the stream token of the `token` query parameter, falling back to the bearer header.
// The access log fields are set first so rejected requests are logged too.
func (h *StreamHandler) authorize(ctx *gin.Context, kind accesslog.Kind) (string, bool) {
	id := ctx.Param("id")

	ctx.Set(accesslog.KeyKind, kind)
	ctx.Set(accesslog.KeyObject, id)
	ctx.Set(accesslog.KeyClient, h.identity.ClientIdentity(ctx.Request))

	token := ctx.Query("token")
	if token == "" {
		token = middlewares.BearerToken(ctx)
	}

	if !h.svc.ValidateToken(token, id) {
		api.AbortWithKind(ctx, errBadToken)
		return "", false
	}
	return id, true
}

func write(ctx *gin.Context, resp *stream.Response) {
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			ctx.Writer.Header().Add(k, v)
		}
	}
	ctx.Status(resp.Status)

	if _, err := io.Copy(ctx.Writer, resp.Body); err != nil {
		// headers are out, all that is left is to note the broken stream
		slog.Warn("stream write", "path", ctx.Request.URL.Path, "error", err)
		ctx.Error(err)
	}
}
