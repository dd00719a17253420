package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/imrishuroy/laundry-payflow/internal/aws"
	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/config"
	"github.com/imrishuroy/laundry-payflow/internal/logging"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
	"github.com/imrishuroy/laundry-payflow/internal/orders"
	"github.com/imrishuroy/laundry-payflow/internal/premium"
)

func openServices(c *cli.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel)

	clients, err := aws.NewAWSClients(c.Context, cfg.AWS())
	if err != nil {
		return nil, err
	}

	outbox := notify.NewStore(clients.DynamoDB, cfg.NotificationsTable)
	loc := cfg.Location()
	return &services{
		Bills: billing.NewService(
			orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
			billing.NewStore(clients.DynamoDB, cfg.BillsTable),
			cfg.CommissionBPS(), loc, logger),
		Relay: notify.NewRelay(outbox, aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL), cfg.RelayMaxAttempts, logger),
		// expiry touches neither the gateway nor order codes
		Premium: premium.NewService(
			premium.NewStore(clients.DynamoDB, cfg.PackagesTable, cfg.PremiumTable, outbox),
			nil, nil, premium.Options{}, logger),
		Loc: loc,
		Now: time.Now,
		Log: logger,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(openServices).RunContext(ctx, os.Args); err != nil {
		logging.New("info").WithError(err).Error("payflowctl failed")
		stop()
		os.Exit(1)
	}
}
