package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"github.com/JaySingh79/Agentic-Recruiter/internal/api/handler"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(h *server.Hertz, interviewHandler *handler.InterviewHandler, exportAPIKey string) {
	api := h.Group("/api/v1")
	{
		interview := api.Group("/interview")
		{
			// 候选人通道：创建会话、提交回答、放弃、查询状态
			interview.POST("", interviewHandler.CreateInterview)
			interview.POST("/:id/answer", interviewHandler.SubmitAnswer)
			interview.POST("/:id/abandon", interviewHandler.AbandonInterview)
			interview.GET("/:id", interviewHandler.GetInterview)

			// 考官通道：导出完整结果（含评分），需要API Key
			export := interview.Group("/:id/export")
			if exportAPIKey != "" {
				export.Use(keyauth.New(
					keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
					keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
						return key == exportAPIKey, nil
					}),
					keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
						c.JSON(consts.StatusUnauthorized, utils.H{"error": "无效的API Key"})
						c.Abort()
					}),
				))
			}
			export.GET("", interviewHandler.ExportInterview)
		}
	}

	// 健康检查路由
	healthHandler := func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{
			"status":  "ok",
			"service": "agentic-recruiter",
		})
	}
	h.GET("/health", healthHandler)
	api.GET("/health", healthHandler)
}
