package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/api/transport"
	"github.com/teamtasks/backend/domain"
	"github.com/teamtasks/backend/internal/middleware"
	"github.com/teamtasks/backend/pkg/httpcontext"
	taskUC "github.com/teamtasks/backend/usecase/task"
)

type TaskHandler struct {
	baseHandler
	uc *taskUC.UseCase
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger, production bool) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger, production),
		uc:          uc,
	}
}

// @Summary List tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) ListTasks(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 50)
	cursor := string(ctx.QueryArgs().Peek("cursor"))

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.List(stdCtx, limit, cursor, identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondCacheable(ctx, http.StatusOK, map[string]interface{}{
		"tasks":      result.Tasks,
		"nextCursor": result.NextCursor,
	})
}

// @Summary Create task
// @Tags tasks
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	var req transport.CreateTaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		h.respondError(ctx, domain.NewError(domain.ErrCodeInvalid, "invalid due date format"))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.Create(stdCtx, taskUC.CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		DueDate:         dueDate,
		TimeEstimate:    req.TimeEstimate,
		AssignedTo:      req.AssignedTo,
		AssignedUserIDs: req.AssignedUserIDs,
	}, identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Get task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Get(stdCtx, pathID(ctx), identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Update task
// @Tags tasks
// @Router /api/v1/tasks/{id} [put]
func (h *TaskHandler) UpdateTask(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	var req transport.UpdateTaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	in := taskUC.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		TimeEstimate: req.TimeEstimate,
		AssignedTo:   req.AssignedTo,
	}
	if req.DueDate != nil {
		dueDate, err := parseDate(*req.DueDate)
		if err != nil {
			h.respondError(ctx, domain.NewError(domain.ErrCodeInvalid, "invalid due date format"))
			return
		}
		in.DueDate = dueDate
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.Update(stdCtx, pathID(ctx), in, identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Delete task
// @Tags tasks
// @Router /api/v1/tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.Delete(stdCtx, pathID(ctx), identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"taskId":             result.TaskID,
		"assignmentsDeleted": result.AssignmentsDeleted,
	})
}

// @Summary Assign task
// @Tags tasks
// @Router /api/v1/tasks/{id}/assign [post]
func (h *TaskHandler) AssignTask(ctx *fasthttp.RequestCtx) {
	identity, err := middleware.IdentityFromRequest(ctx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	var req transport.AssignTaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.Assign(stdCtx, pathID(ctx), req.UserIDs, identity)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"taskId":             result.Task.TaskID,
		"newAssignments":     result.NewAssignments,
		"totalAssignedUsers": result.TotalAssignedUsers,
	})
}

func pathID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue("id").(string); ok {
		return id
	}
	return ""
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// parseDate accepts both RFC 3339 timestamps and bare dates.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
