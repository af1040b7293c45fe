package api

import (
	"errors"
	"net/http"

	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/gin-gonic/gin"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithKind maps a pipeline error kind to its status and API code.
// Anything unrecognised is reported as an internal error without leaking the cause.
func AbortWithKind(ctx *gin.Context, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		ctx.Abort()
		ctx.Error(err)
		ctx.PureJSON(status, APIError{Code: code, Message: errs.ErrInternal.Error()})
		return
	}

	var incomplete *errs.IncompleteError
	if errors.As(err, &incomplete) {
		ctx.Abort()
		ctx.Error(err)
		ctx.PureJSON(status, APIError{Code: code, Message: err.Error(), Missing: incomplete.Missing})
		return
	}

	AbortWithError(ctx, status, code, err)
}

// StatusFor returns the HTTP status and API code for an error kind.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInternal):
		return http.StatusInternalServerError, CodeInternalError
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, errs.ErrExpired):
		return http.StatusGone, CodeExpired
	case errors.Is(err, errs.ErrIncomplete):
		return http.StatusConflict, CodeUploadIncomplete
	case errors.Is(err, errs.ErrOutOfRange):
		return http.StatusBadRequest, CodeChunkOutOfRange
	case errors.Is(err, errs.ErrIntegrityMismatch):
		return http.StatusUnprocessableEntity, CodeIntegrityMismatch
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, errs.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable, CodeRangeNotSatisfiable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}
