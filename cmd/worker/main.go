package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/config"
	"github.com/imrishuroy/laundry-payflow/internal/idempotency"
	"github.com/imrishuroy/laundry-payflow/internal/logging"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	logger := logging.New(cfg.LogLevel)

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS())
	if err != nil {
		logger.WithError(err).Fatal("init aws clients")
	}

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.DeliveryTTL, cfg.DeliveryLease),
		notify.LogSender{Log: logger},
		logger,
	)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"notification_id":"local:PAYMENT_CONFIRMED:CUSTOMER","recipient_id":"local-customer","recipient_role":"CUSTOMER","event":"PAYMENT_CONFIRMED","title":"local","body":"local"}`
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local delivery failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
