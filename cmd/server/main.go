package main

import (
	"context"
	"log"

	"waticket/internal/api"
	"waticket/internal/campaign"
	"waticket/internal/config"
	"waticket/internal/database"
	"waticket/internal/router"
	"waticket/internal/scheduler"
	"waticket/internal/transport"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	database.InitGorm(cfg)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	sender := transport.NewHTTPSender(cfg.TransportURL, cfg.TransportToken)
	routerEngine := router.NewEngine(database.GormDB, sender, router.Policy{
		MaxRetries:    cfg.BotMaxRetries,
		FallbackQueue: cfg.BotFallbackQueue,
		RetryPrompt:   cfg.BotRetryPrompt,
	})
	dispatcher := campaign.NewDispatcher(database.GormDB, sender, cfg.VariantPolicy)
	campaignScheduler := scheduler.NewScheduler(database.GormDB, dispatcher, cfg.SchedulerSpec)

	if err := campaignScheduler.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start campaign scheduler: %v", err)
	}
	defer campaignScheduler.Stop()

	eventHandler := api.NewEventHandler(routerEngine)
	flowHandler := api.NewFlowHandler()
	campaignHandler := api.NewCampaignHandler(campaignScheduler)

	// Channel event feed
	r.POST("/webhook/messages", eventHandler.HandleInboundMessage)
	r.POST("/webhook/receipts", eventHandler.HandleDeliveryReceipt)

	apiGroup := r.Group("/api")
	{
		// Flow Routes
		apiGroup.GET("/flows", flowHandler.GetFlows)
		apiGroup.POST("/flows", flowHandler.CreateFlow)
		apiGroup.GET("/flows/:id", flowHandler.GetFlow)
		apiGroup.POST("/flows/:id/activate", flowHandler.ActivateFlow)
		apiGroup.POST("/flows/:id/deactivate", flowHandler.DeactivateFlow)
		apiGroup.DELETE("/flows/:id", flowHandler.DeleteFlow)

		// Campaign Routes
		apiGroup.GET("/campaigns", campaignHandler.GetCampaigns)
		apiGroup.POST("/campaigns", campaignHandler.CreateCampaign)
		apiGroup.GET("/campaigns/:id", campaignHandler.GetCampaign)
		apiGroup.POST("/campaigns/:id/recipients", campaignHandler.EnrollRecipients)
		apiGroup.POST("/campaigns/:id/start", campaignHandler.StartCampaign)
		apiGroup.POST("/campaigns/:id/cancel", campaignHandler.CancelCampaign)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
