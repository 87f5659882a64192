package queue

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/previewq/common"
	"github.com/joshu-sajeev/previewq/internal/dto"
	"github.com/joshu-sajeev/previewq/internal/worker"
	"github.com/joshu-sajeev/previewq/middleware"
)

type QueueHandler struct {
	service QueueServiceInterface
	pidFile string
}

func NewQueueHandler(s QueueServiceInterface, pidFile string) *QueueHandler {
	return &QueueHandler{service: s, pidFile: pidFile}
}

var _ QueueHandlerInterface = (*QueueHandler)(nil)

func (h *QueueHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/queue")
	g.POST("/process", h.Process)
	g.GET("/status", h.Status)
	g.GET("/worker-status", h.WorkerStatus)
	g.POST("/regenerate/:file_id", h.Regenerate)
	g.GET("/jobs/:id", h.GetJob)
}

// Process runs one batch. Job failures are reported in the body; only a
// database failure turns into an error response.
func (h *QueueHandler) Process(c *gin.Context) {
	var req dto.ProcessRequest
	// chunked bodies report a length of -1
	if c.Request.ContentLength != 0 && c.Request.Body != http.NoBody {
		if !middleware.Bind(c, &req) {
			c.Abort()
			return
		}
	}

	res, err := h.service.ProcessBatch(c.Request.Context(), req.Limit)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *QueueHandler) Status(c *gin.Context) {
	res, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WorkerStatus reports whether the CLI daemon named by the PID file is alive.
func (h *QueueHandler) WorkerStatus(c *gin.Context) {
	state, pid := worker.Status(h.pidFile)
	c.JSON(http.StatusOK, dto.WorkerStatus{Status: string(state), PID: pid})
}

func (h *QueueHandler) Regenerate(c *gin.Context) {
	id, ok := parseID(c, "file_id")
	if !ok {
		return
	}

	res, err := h.service.Enqueue(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *QueueHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	res, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid %s", param))
		return 0, false
	}
	return uint(id), true
}
