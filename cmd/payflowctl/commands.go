package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/imrishuroy/laundry-payflow/internal/billing"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
)

type biller interface {
	GenerateAll(ctx context.Context, vendorIDs []string, month, year int) []billing.GenerateResult
	MarkPaid(ctx context.Context, vendorID, period string) (*billing.Bill, error)
}

type relayer interface {
	RunOnce(ctx context.Context, batch int32) (notify.RelayResult, error)
}

type expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// services is what the commands run against. main opens the real ones.
type services struct {
	Bills   biller
	Relay   relayer
	Premium expirer
	Loc     *time.Location
	Now     func() time.Time
	Log     log.FieldLogger
}

type opener func(c *cli.Context) (*services, error)

func newApp(open opener) *cli.App {
	return &cli.App{
		Name:  "payflowctl",
		Usage: "operate the laundry payment core: billing runs, outbox relay, premium expiry",
		Commands: []*cli.Command{
			{
				Name:  "bills",
				Usage: "monthly vendor bills",
				Subcommands: []*cli.Command{
					{
						Name:  "generate",
						Usage: "generate bills for a closed month",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{Name: "vendor", Required: true, Usage: "vendor id, repeatable"},
							&cli.IntFlag{Name: "month", Usage: "1-12, defaults to last month"},
							&cli.IntFlag{Name: "year", Usage: "defaults to last month's year"},
						},
						Action: func(c *cli.Context) error {
							svc, err := open(c)
							if err != nil {
								return err
							}
							return generateBills(c, svc)
						},
					},
					{
						Name:  "pay",
						Usage: "record the payout of a bill",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "vendor", Required: true},
							&cli.StringFlag{Name: "period", Required: true, Usage: "YYYY-MM"},
						},
						Action: func(c *cli.Context) error {
							svc, err := open(c)
							if err != nil {
								return err
							}
							b, err := svc.Bills.MarkPaid(c.Context, c.String("vendor"), c.String("period"))
							if err != nil {
								return pkgerrors.Wrap(err, "mark bill paid")
							}
							fmt.Fprintf(c.App.Writer, "%s %s %s net=%d\n", b.VendorID, b.Period, b.Status, b.NetPayable())
							return nil
						},
					},
				},
			},
			{
				Name:  "outbox",
				Usage: "notification outbox",
				Subcommands: []*cli.Command{
					{
						Name:  "relay",
						Usage: "publish pending notifications to the delivery queue",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "batch", Value: 25},
							&cli.BoolFlag{Name: "loop", Usage: "keep relaying until interrupted"},
							&cli.DurationFlag{Name: "interval", Value: 10 * time.Second},
						},
						Action: func(c *cli.Context) error {
							svc, err := open(c)
							if err != nil {
								return err
							}
							return relayOutbox(c, svc)
						},
					},
				},
			},
			{
				Name:  "premium",
				Usage: "vendor premium packages",
				Subcommands: []*cli.Command{
					{
						Name:  "expire",
						Usage: "expire active packages past their end date",
						Action: func(c *cli.Context) error {
							svc, err := open(c)
							if err != nil {
								return err
							}
							n, err := svc.Premium.ExpireDue(c.Context, svc.Now())
							if err != nil {
								return pkgerrors.Wrap(err, "expire premium packages")
							}
							fmt.Fprintf(c.App.Writer, "expired %d\n", n)
							return nil
						},
					},
				},
			},
		},
	}
}

// lastMonth is the most recent closed billing month in loc.
func lastMonth(now time.Time, loc *time.Location) (int, int) {
	t := now.In(loc)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	return int(first.Month()), first.Year()
}

func generateBills(c *cli.Context, svc *services) error {
	month, year := lastMonth(svc.Now(), svc.Loc)
	if c.IsSet("month") {
		month = c.Int("month")
	}
	if c.IsSet("year") {
		year = c.Int("year")
	}

	failed := 0
	for _, r := range svc.Bills.GenerateAll(c.Context, c.StringSlice("vendor"), month, year) {
		var conflict *billing.ConflictError
		switch {
		case r.Err == nil:
			fmt.Fprintf(c.App.Writer, "%s %s created net=%d\n", r.VendorID, r.Bill.Period, r.Bill.NetPayable())
		case errors.As(r.Err, &conflict):
			fmt.Fprintf(c.App.Writer, "%s %s exists net=%d\n", r.VendorID, conflict.Bill.Period, conflict.Bill.NetPayable())
		default:
			failed++
			fmt.Fprintf(c.App.ErrWriter, "%s failed: %v\n", r.VendorID, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d vendor(s) not billed", failed)
	}
	return nil
}

func relayOutbox(c *cli.Context, svc *services) error {
	batch := int32(c.Int("batch"))
	for {
		res, err := svc.Relay.RunOnce(c.Context, batch)
		if err != nil {
			return pkgerrors.Wrap(err, "relay outbox")
		}
		svc.Log.WithFields(log.Fields{"published": res.Published, "failed": res.Failed, "parked": res.Parked}).Info("outbox relayed")
		if !c.Bool("loop") {
			return nil
		}
		// a full batch means more may be waiting
		if res.Published == int(batch) {
			continue
		}
		select {
		case <-c.Context.Done():
			return nil
		case <-time.After(c.Duration("interval")):
		}
	}
}
