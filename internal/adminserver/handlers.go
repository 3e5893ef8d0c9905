package adminserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/metrics"
)

// Handlers exposes the public TM surface (spec.md §6) as JSON routes, one
// per operation, plus the governance API gated by the operator role.
type Handlers struct {
	tm  *tm2pc.TM
	hub *Hub
}

func NewHandlers(tm *tm2pc.TM, hub *Hub) *Handlers {
	return &Handlers{tm: tm, hub: hub}
}

func toid(c *gin.Context, param string) (tm2pc.Toid, bool) {
	v, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return tm2pc.Toid(v), true
}

func ttid(c *gin.Context, param string) (tm2pc.Ttid, bool) {
	v, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return tm2pc.Ttid(v), true
}

func writeError(c *gin.Context, err error) {
	switch err {
	case tm2pc.ErrOrderNotFound, tm2pc.ErrTaskNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case tm2pc.ErrNotOpening, tm2pc.ErrOrderTerminal, tm2pc.ErrTaskCompleted:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// createOrderRequest is the body for POST /orders.
type createOrderRequest struct {
	Data json.RawMessage `json:"data"`
}

func (h *Handlers) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.tm.Create(c.Request.Context(), req.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.RecordOrderTransition(string(tm2pc.OrderTodo))
	c.JSON(http.StatusCreated, gin.H{"toid": id})
}

func (h *Handlers) GetOrder(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	order, err := h.tm.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handlers) GetOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	orders, total, totalPages, err := h.tm.GetOrders(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":     orders,
		"total":      total,
		"totalPages": totalPages,
		"page":       page,
	})
}

func (h *Handlers) GetTaskEvents(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	events, err := h.tm.GetTaskEvents(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ttids": events})
}

// pushRequest is the shared body shape for push/update/append — one
// participant's prepare/commit/optional-compensation triplet.
type pushRequest struct {
	Prepare tm2pc.Task  `json:"prepare"`
	Commit  tm2pc.Task  `json:"commit"`
	Comp    *tm2pc.Task `json:"comp,omitempty"`
}

func (h *Handlers) Push(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newTtid, err := h.tm.Push(c.Request.Context(), id, req.Prepare, req.Commit, req.Comp, nil, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ttid": newTtid})
}

func (h *Handlers) Append(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newTtid, err := h.tm.Append(c.Request.Context(), id, req.Prepare, req.Commit, req.Comp, nil, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ttid": newTtid})
}

func (h *Handlers) Update(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	oldTtid, ok := ttid(c, "ttid")
	if !ok {
		return
	}
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newTtid, err := h.tm.Update(c.Request.Context(), id, oldTtid, req.Prepare, req.Commit, req.Comp, nil, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ttid": newTtid})
}

func (h *Handlers) Remove(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	tid, ok := ttid(c, "ttid")
	if !ok {
		return
	}
	removed, err := h.tm.Remove(c.Request.Context(), id, tid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type appendCompRequest struct {
	ForTtid tm2pc.Ttid `json:"forTtid"`
	Comp    tm2pc.Task `json:"comp"`
}

func (h *Handlers) AppendComp(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	var req appendCompRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tcid, err := h.tm.AppendComp(c.Request.Context(), id, req.ForTtid, req.Comp, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tcid": tcid})
}

type completeRequest struct {
	Target tm2pc.OrderStatus `json:"target"`
}

func (h *Handlers) Complete(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok2, err := h.tm.Complete(c.Request.Context(), id, req.Target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": ok2})
}

func (h *Handlers) Open(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	if err := h.tm.Open(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "opened"})
}

func (h *Handlers) Finish(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	if err := h.tm.Finish(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "finished"})
}

func (h *Handlers) Run(c *gin.Context) {
	id, ok := toid(c, "toid")
	if !ok {
		return
	}
	if err := h.tm.Run(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ran"})
}
