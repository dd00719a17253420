package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/auth"
	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/config"
	"github.com/imrishuroy/laundry-payflow/internal/handlers"
	"github.com/imrishuroy/laundry-payflow/internal/logging"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/ordercode"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/payments"
	"github.com/imrishuroy/laundry-payflow/internal/payos"
	"github.com/imrishuroy/laundry-payflow/internal/premium"
)

func setupRouter(cfg handlers.HandlerConfig, logger *log.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))
	handlers.RegisterRoutes(r, cfg)
	return r
}

func buildHandlers(cfg *config.Config, clients *aws.AWSClients, logger *log.Logger) handlers.HandlerConfig {
	codes := ordercode.NewGenerator(ordercode.NewDynamoSequence(clients.DynamoDB, cfg.CountersTable, ordercode.CounterName))
	gateway := payos.New(cfg.GatewayClientID, cfg.GatewayAPIKey, cfg.GatewayChecksumKey, cfg.GatewayBaseURL, cfg.GatewayTimeout)

	outbox := notify.NewStore(clients.DynamoDB, cfg.NotificationsTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	linkStore := payments.NewStore(clients.DynamoDB, cfg.PaymentLinksTable, cfg.OrdersTable, outbox)
	premiumStore := premium.NewStore(clients.DynamoDB, cfg.PackagesTable, cfg.PremiumTable, outbox)
	billStore := billing.NewStore(clients.DynamoDB, cfg.BillsTable)

	premiumSvc := premium.NewService(premiumStore, gateway, codes, premium.Options{
		ReturnURL: cfg.ReturnURL,
		CancelURL: cfg.CancelURL,
	}, logger)
	paymentSvc := payments.NewService(orderStore, linkStore, gateway, codes, premiumSvc,
		aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
		payments.Options{ReturnURL: cfg.ReturnURL, CancelURL: cfg.CancelURL},
		logger)

	return handlers.HandlerConfig{
		Orders:   orders.NewService(orderStore, linkStore, logger),
		Payments: paymentSvc,
		Billing:  billing.NewService(orderStore, billStore, cfg.CommissionBPS(), cfg.Location(), logger),
		Premium:  premiumSvc,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Logger:   logger,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	logger := logging.New(cfg.LogLevel)
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS())
	if err != nil {
		logger.WithError(err).Fatal("init aws clients")
	}

	r := setupRouter(buildHandlers(cfg, clients, logger), logger)

	// If RUN_LOCAL=true, serve HTTP directly for development.
	if cfg.RunLocal {
		logger.WithField("addr", cfg.HTTPAddr).Info("running local server")
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.WithError(err).Fatal("local server stopped")
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
