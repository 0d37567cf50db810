package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/services/scheduler"
)

// dryRunNotifier prints the digests instead of mailing them.
type dryRunNotifier struct {
	cli *commandLine
}

func (n dryRunNotifier) NotifyPendingOffers(digests []schedule.OfferDigest) int {
	if err := n.cli.printJSON(digests); err != nil {
		n.cli.logger.Error("printing digests", err)
	}
	return len(digests)
}

func (cli *commandLine) sweep(ctx context.Context, window time.Duration, dryRun bool) error {
	conf := cli.conf.Schedule
	conf.ReminderWindow = window

	var notifier scheduler.OfferNotifier = cli.notifier
	if dryRun {
		notifier = dryRunNotifier{cli: cli}
	}
	sweep, err := scheduler.NewReminderSweep(conf, cli.schedule, notifier, cli.logger)
	if err != nil {
		return err
	}
	n, err := sweep.Run(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%d reminder(s)\n", n)
	return nil
}
