package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"milestone-service/internal/handler"
	"milestone-service/pkg/mq"
)

type RouterDeps struct {
	Milestones *handler.MilestoneHandler
	Documents  *handler.DocumentHandler
	Payments   *handler.PaymentHandler
	Admin      *handler.AdminHandler

	DB        *pgxpool.Pool
	Publisher *mq.Publisher
	Consumers []*mq.Consumer

	JWTSecret      string
	AdminTokenHash string
	Logger         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(deps.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := deps.DB.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if deps.Publisher != nil && !deps.Publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_publisher_not_ready"})
			return
		}
		for _, consumer := range deps.Consumers {
			if consumer != nil && !consumer.IsConnected() {
				c.JSON(500, gin.H{"status": "mq_consumer_not_ready"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", ActorAuth(deps.JWTSecret))
	{
		api.POST("/projects/:projectId/milestones", deps.Milestones.CreateMilestone)
		api.GET("/projects/:projectId/milestones", deps.Milestones.ListMilestones)
		api.GET("/milestones/:id", deps.Milestones.GetMilestone)
		api.PATCH("/milestones/:id", deps.Milestones.EditMilestone)
		api.POST("/milestones/:id/complete", deps.Milestones.MarkComplete)
		api.POST("/milestones/:id/approve", deps.Milestones.Approve)
		api.POST("/milestones/:id/reject", deps.Milestones.Reject)
		api.POST("/milestones/:id/cancel", deps.Milestones.Cancel)
		api.POST("/milestones/:id/photos", deps.Milestones.AttachPhoto)
		api.POST("/milestones/:id/release", deps.Payments.ReleasePayment)

		api.GET("/projects/:projectId/payments", deps.Payments.ListPaymentRequests)

		api.GET("/projects/:projectId/documents", deps.Documents.ListDocuments)
		api.POST("/projects/:projectId/documents", deps.Documents.UploadDocument)
		api.POST("/documents/:id/viewed", deps.Documents.MarkViewed)
	}

	admin := r.Group("/admin", AdminAuth(deps.AdminTokenHash))
	{
		admin.POST("/outbox/:id/replay", deps.Admin.ReplayEvent)
		admin.POST("/outbox/replay-failed", deps.Admin.ReplayFailedEvents)
	}

	return r
}
