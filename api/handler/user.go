package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/internal/middleware"
	"github.com/teamtasks/backend/pkg/httpcontext"
	userUC "github.com/teamtasks/backend/usecase/user"
)

type UserHandler struct {
	baseHandler
	uc *userUC.UseCase
}

func NewUserHandler(uc *userUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger, production bool) *UserHandler {
	return &UserHandler{
		baseHandler: newBaseHandler(adapter, logger, production),
		uc:          uc,
	}
}

// @Summary List directory users
// @Tags users
// @Router /api/v1/users [get]
func (h *UserHandler) ListUsers(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	users, err := h.uc.ListUsers(stdCtx, identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondCacheable(ctx, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}
