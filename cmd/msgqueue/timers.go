package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-message-queue/core"
)

func TimersCommand() *cli.Command {
	return &cli.Command{
		Name:  "timers",
		Usage: "Fire three timers one step apart; the last one posts follow-up work",

		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "step",
				Value: time.Second,
				Usage: "Distance between the timer deadlines",
			},
		},

		Action: TimersAction,
	}
}

func TimersAction(c *cli.Context) error {
	step := c.Duration("step")
	if step <= 0 {
		return cli.Exit("step must be positive", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	logger := newLogService(c, cfg)
	out := c.App.Writer

	registry := core.NewTimerRegistry(
		core.WithRegistryLogger(logger),
		core.WithFallbackInterval(cfg.Registry.Fallback()),
	)
	defer registry.Stop()

	q := core.NewDeferredQueue(core.WithQueueName("main"), core.WithQueueLogger(logger))
	done := false

	func1 := core.Func(func(ctx context.Context) { fmt.Fprintln(out, "func1") })
	func2 := core.Func(func(ctx context.Context) {
		fmt.Fprintln(out, "func2")
		done = true
	})

	timers := make([]*core.Timer, 3)
	start := time.Now()
	for i := range timers {
		n := i + 1
		timers[i] = registry.NewTimer(q)
		defer timers[i].Close()

		timers[i].Schedule(start.Add(time.Duration(n)*step), core.Func(func(ctx context.Context) {
			fmt.Fprintf(out, "timer %d fired after %v\n", n, time.Since(start).Round(time.Millisecond))
			if n == len(timers) {
				q.Post(func1)
				q.Post(func1)
				q.Post(func2)
			}
		}))
	}

	for !done {
		q.Run(step / 2)
	}
	return nil
}
