package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diascribe/diascribe/cmd/server/internal/degradation"
	"github.com/diascribe/diascribe/cmd/server/internal/health"
)

// HealthzResponse 是 /healthz 的响应体。
type HealthzResponse struct {
	Status   string                          `json:"status"` // ok 或 degraded
	Degraded bool                            `json:"degraded"`
	Services map[string]health.ServiceStatus `json:"services"`
}

// HandleHealthz 报告服务存活状态和各外部适配器的健康快照。
// checkers 以适配器名为键；mock 模式下可以为空。dc 在未启用降级时为 nil。
func HandleHealthz(checkers map[string]*health.HealthChecker, dc *degradation.DegradationController) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthzResponse{
			Status:   "ok",
			Services: make(map[string]health.ServiceStatus, len(checkers)),
		}

		for name, hc := range checkers {
			status := hc.GetStatus()
			resp.Services[name] = status
			if !status.IsHealthy {
				resp.Status = "degraded"
			}
		}

		if dc != nil && dc.IsDegraded() {
			resp.Degraded = true
			resp.Status = "degraded"
		}

		// 进程活着就返回 200；适配器故障通过 status 字段暴露
		c.JSON(http.StatusOK, resp)
	}
}
