package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/randomizedcoder/go-sipp-swarm/internal/instance"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
)

const ctxInstanceKey = "instance"

// RateRequest is the body of PUT /rate.
type RateRequest struct {
	Rate *int `json:"rate" binding:"required,min=0"`
}

// RateResponse is the body of GET /rate.
type RateResponse struct {
	Rate        int     `json:"rate"`
	CurrentRate float64 `json:"current_rate"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	parser.Summary
	CallLengths []parser.Bucket `json:"call_lengths,omitempty"`
}

// CleanUpResponse is the body of DELETE /files.
type CleanUpResponse struct {
	Removed bool `json:"removed"`
}

func (h *Handler) lookup(ctx *gin.Context) {
	inst, err := h.registry.Lookup(ctx.Param("id"))
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.Set(ctxInstanceKey, inst)
	ctx.Next()
}

func current(ctx *gin.Context) *instance.Instance {
	return ctx.MustGet(ctxInstanceKey).(*instance.Instance)
}

func (h *Handler) list(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.registry.Statuses())
}

func (h *Handler) create(ctx *gin.Context) {
	var spec instance.Spec
	if err := ctx.ShouldBindJSON(&spec); err != nil {
		h.fail(ctx, fmt.Errorf("%w: %v", instance.ErrInvalidSpec, err))
		return
	}
	inst, err := h.registry.NewInstance(spec)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.Header("Location", "/sipp/instances/"+inst.ID().String())
	ctx.JSON(http.StatusCreated, inst.Status())
}

func (h *Handler) get(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, current(ctx).Status())
}

func (h *Handler) remove(ctx *gin.Context) {
	inst := current(ctx)
	if err := h.registry.Remove(inst.ID()); err != nil {
		h.fail(ctx, err)
		return
	}
	if h.onRemove != nil {
		h.onRemove(inst.Name())
	}
	ctx.Status(http.StatusNoContent)
}

func (h *Handler) start(ctx *gin.Context) {
	inst, err := h.await(ctx, current(ctx).Start())
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, inst.Status())
}

func (h *Handler) stop(ctx *gin.Context) {
	force, err := strconv.ParseBool(ctx.DefaultQuery("force", "false"))
	if err != nil {
		h.fail(ctx, fmt.Errorf("%w: force: %v", instance.ErrInvalidSpec, err))
		return
	}
	h.run(ctx, func(inst *instance.Instance) (*sched.Future[*instance.Instance], error) {
		return inst.Stop(force)
	})
}

func (h *Handler) getRate(ctx *gin.Context) {
	inst := current(ctx)
	if inst.Worker() == nil {
		h.fail(ctx, instance.ErrNotStarted)
		return
	}
	ctx.JSON(http.StatusOK, RateResponse{
		Rate:        inst.TargetRate(),
		CurrentRate: inst.CurrentRate(),
	})
}

func (h *Handler) setRate(ctx *gin.Context) {
	var req RateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.fail(ctx, fmt.Errorf("%w: %v", instance.ErrInvalidSpec, err))
		return
	}
	h.run(ctx, func(inst *instance.Instance) (*sched.Future[*instance.Instance], error) {
		return inst.SetRate(*req.Rate)
	})
}

func (h *Handler) increase10(ctx *gin.Context) {
	h.run(ctx, (*instance.Instance).Increase10)
}

func (h *Handler) decrease10(ctx *gin.Context) {
	h.run(ctx, (*instance.Instance).Decrease10)
}

func (h *Handler) pause(ctx *gin.Context) {
	h.run(ctx, (*instance.Instance).Pause)
}

// run submits op and answers with the instance status once it completes.
func (h *Handler) run(ctx *gin.Context, op func(*instance.Instance) (*sched.Future[*instance.Instance], error)) {
	f, err := op(current(ctx))
	if err != nil {
		h.fail(ctx, err)
		return
	}
	inst, err := h.await(ctx, f)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, inst.Status())
}

func (h *Handler) stats(ctx *gin.Context) {
	snap, err := current(ctx).Stats()
	if err != nil {
		h.fail(ctx, err)
		return
	}
	resp := StatsResponse{Summary: snap.Summary()}
	if hist, err := snap.CallLengthHistogram(); err == nil {
		resp.CallLengths = hist.Buckets()
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *Handler) cleanUp(ctx *gin.Context) {
	removed, err := current(ctx).CleanUp()
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, CleanUpResponse{Removed: removed})
}
