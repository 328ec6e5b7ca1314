package router

import (
	"github.com/Giveth/giveth-dapp-sub001/internal/handler"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/Giveth/giveth-dapp-sub001/internal/subscription"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(reg *registry.Registry, idx *index.Index, dwf *workflow.DelegationWorkflow, wwf *workflow.WithdrawalWorkflow, broker *subscription.Broker) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "pledge-engine",
		})
	})

	// 指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 实体相关路由
		entityHandler := handler.NewEntityHandler(reg)
		entities := v1.Group("/entities")
		{
			entities.POST("", entityHandler.CreateEntity)
			entities.GET("", entityHandler.GetEntities)
			entities.GET("/:id", entityHandler.GetEntity)
		}

		// 捐赠与委派相关路由
		donationHandler := handler.NewDonationHandler(idx, dwf)
		delegationHandler := handler.NewDelegationHandler(dwf)
		withdrawalHandler := handler.NewWithdrawalHandler(idx, wwf)
		donations := v1.Group("/donations")
		{
			donations.POST("", donationHandler.Donate)
			donations.GET("", donationHandler.GetDonations)
			donations.GET("/:id", donationHandler.GetDonation)
			donations.POST("/:id/propose", delegationHandler.Propose)
			donations.POST("/:id/approve", delegationHandler.Approve)
			donations.POST("/:id/reject", delegationHandler.Reject)
			donations.POST("/:id/refund", delegationHandler.Refund)
			donations.POST("/:id/withdraw", withdrawalHandler.Withdraw)
			donations.GET("/:id/withdrawals", withdrawalHandler.GetDonationWithdrawals)
		}

		// 提现相关路由
		withdrawals := v1.Group("/withdrawals")
		{
			withdrawals.GET("/gas", withdrawalHandler.QuoteGas)
			withdrawals.GET("/:id", withdrawalHandler.GetWithdrawal)
		}

		// 实时订阅路由
		streamHandler := handler.NewStreamHandler(broker)
		v1.GET("/stream/donations", streamHandler.StreamDonations)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
