package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-message-queue/core"
)

func PipelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "Drive a render queue from a logic loop polled by a repeating timer",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "frames",
				Value: 60,
				Usage: "Number of frames to produce",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 15 * time.Millisecond,
				Usage: "Polling interval of the logic timer",
			},
		},

		Action: PipelineAction,
	}
}

func PipelineAction(c *cli.Context) error {
	frames := c.Int("frames")
	interval := c.Duration("interval")
	if frames < 1 {
		return cli.Exit("frames must be at least 1", 1)
	}
	if interval <= 0 {
		return cli.Exit("interval must be positive", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	logger := newLogService(c, cfg)
	out := c.App.Writer

	registry := core.NewTimerRegistry(core.WithRegistryLogger(logger))
	defer registry.Stop()

	render := core.NewDeferredQueue(core.WithQueueName("render"), core.WithQueueLogger(logger))
	logic := core.NewLoop(core.NewDeferredQueue(core.WithQueueName("logic"), core.WithQueueLogger(logger)), time.Second)
	if err := logic.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer logic.Stop()

	// Only touched on the logic goroutine.
	watch := core.NewStopWatch()
	watch.Start()

	var produced atomic.Int64
	done := false
	handle := core.Repeat(registry.NewTimer(logic), interval, func(ctx context.Context) {
		if produced.Load() >= int64(frames) {
			return
		}
		dt := watch.Update()
		elapsed := watch.Elapsed()
		n := produced.Add(1)

		render.PostFunc(func(ctx context.Context) {
			fmt.Fprintf(out, "frame %d dt=%v\n", n, dt.Round(time.Millisecond))
		})
		if n == int64(frames) {
			render.PostFunc(func(ctx context.Context) {
				fmt.Fprintf(out, "rendered %d frames in %v\n", n, elapsed.Round(time.Millisecond))
				done = true
			})
		}
	})
	defer handle.Stop()

	for !done {
		render.Run(time.Second)
	}
	handle.Stop()

	logger.Debug("pipeline finished", core.F("frames", frames), core.F("timer_runs", handle.Runs()))
	return nil
}
