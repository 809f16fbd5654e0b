package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/api/transport"
	"github.com/teamtasks/backend/internal/infrastructure/monitor"
	"github.com/teamtasks/backend/pkg/httpcontext"
)

type HealthHandler struct {
	baseHandler
	monitor *monitor.Monitor
}

func NewHealthHandler(mon *monitor.Monitor, adapter *httpcontext.Adapter, logger *zap.Logger, production bool) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger, production),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services": map[string]interface{}{
			"directory": status.Directory,
			"redis":     status.Redis,
			"docstore":  status.DocStore,
			"outbox": map[string]interface{}{
				"size": status.OutboxSize,
			},
		},
	}

	if status.Directory && status.DocStore {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	noCache(ctx)
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("dependencies unhealthy", ""))
}
