package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/upgrade"
)

// Controller 升级引擎的控制能力，由 *upgrade.Engine 实现
type Controller interface {
	Status() upgrade.Status
	Resolve(kind upgrade.DecisionKind, accept bool)
	Abort()
}

// UpgradeHandler 升级控制API处理器
type UpgradeHandler struct {
	ctl    Controller
	logger *zap.Logger
}

func NewUpgradeHandler(ctl Controller, logger *zap.Logger) *UpgradeHandler {
	return &UpgradeHandler{ctl: ctl, logger: logger}
}

// DecisionRequest 决策回复
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Accept   *bool  `json:"accept" binding:"required"`
}

// GetStatus 查询升级状态
// GET /api/upgrade/status
func (h *UpgradeHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Status())
}

// Decide 回复等待中的决策
// POST /api/upgrade/decision
func (h *UpgradeHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	kind, ok := upgrade.ParseDecision(req.Decision)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown decision"})
		return
	}

	st := h.ctl.Status()
	if st.Awaiting != kind.String() {
		c.JSON(http.StatusConflict, gin.H{"error": "decision not pending", "awaiting": st.Awaiting})
		return
	}

	h.ctl.Resolve(kind, *req.Accept)
	h.logger.Info("decision submitted", zap.String("decision", req.Decision), zap.Bool("accept", *req.Accept))
	c.JSON(http.StatusAccepted, gin.H{"message": "accepted"})
}

// Abort 中止当前升级
// POST /api/upgrade/abort
func (h *UpgradeHandler) Abort(c *gin.Context) {
	if !h.ctl.Status().Active() {
		c.JSON(http.StatusConflict, gin.H{"error": "no active upgrade"})
		return
	}
	h.ctl.Abort()
	h.logger.Info("abort submitted")
	c.JSON(http.StatusAccepted, gin.H{"message": "accepted"})
}
