package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/api/transport"
	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/pkg/httpcontext"
)

type baseHandler struct {
	adapter    *httpcontext.Adapter
	logger     *zap.Logger
	production bool
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger, production bool) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger, production: production}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) []byte {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
	return body
}

// respondSuccess writes a non-cacheable success envelope.
func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	noCache(ctx)
	h.respondJSON(ctx, status, transport.NewSuccess(data))
}

// respondCacheable marks a read response cacheable for five minutes with a
// weak content-derived validator.
func (h baseHandler) respondCacheable(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	body := h.respondJSON(ctx, status, transport.NewSuccess(data))
	ctx.Response.Header.Set("Cache-Control", "max-age=300, must-revalidate")
	ctx.Response.Header.Set("ETag", fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(body)))
}

// respondError maps the error to a status class. Errors are never cached;
// upstream error detail is echoed outside production only.
func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	noCache(ctx)
	status := mapError(err)

	message := err.Error()
	detail := ""
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		message = dErr.Message
		if dErr.Err != nil && !h.production {
			detail = dErr.Err.Error()
		}
	}
	h.respondJSON(ctx, status, transport.NewError(message, detail))
}

func noCache(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")
}

func mapError(err error) int {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthenticated):
		return http.StatusUnauthorized
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict
	case domain.IsDomainError(err, domain.ErrCodeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
