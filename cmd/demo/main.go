// ============================================================================
// Stagerunner Demo - Dependent Pipeline Scenario
// ============================================================================
//
// File: cmd/demo/main.go
// Purpose: Drive the scheduler through a three-job dependent pipeline
//
// Pipeline:
//   mkdir (create five directories, one per stage)
//     └─ touch (marker file per directory, depends on mkdir)
//          └─ fetch (download pages, depends on touch)
//
// Interrupting the run (Ctrl+C or `stagerunner halt`) checkpoints the
// unfinished jobs; running the demo again resumes them. After `halt` the
// condition cache still reads false, so a rerun checkpoints again at its
// first step until that file is removed.
//
// Usage:
//   go run ./cmd/demo
//
// ============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiselas/stagerunner/internal/scheduler"
	"github.com/kiselas/stagerunner/internal/tasks"
)

func main() {
	sched, err := scheduler.New(scheduler.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create scheduler: %v\n", err)
		os.Exit(1)
	}

	stats := sched.Stats()
	if stats["queued"]+stats["running"] == 0 {
		// Fresh run: build the pipeline. A resumed run already carries
		// its jobs from the snapshot directories.
		dirs := []string{"./test1/", "./test2/", "./test3/", "./test4/", "./test5/"}
		urls := []string{
			"https://go.dev/",
			"https://pkg.go.dev/",
			"https://go.dev/blog/",
		}

		mkdir := tasks.NewMkdirTask(dirs)
		mkdir.Meta().MaxTries = 3

		touch := tasks.NewTouchTask(dirs)
		touch.Meta().MaxTries = 3
		touch.Meta().Dependencies = append(touch.Meta().Dependencies, mkdir.Meta().ID)

		fetch := tasks.NewFetchTask(urls, ".")
		fetch.Meta().MaxTries = 3
		fetch.Meta().Dependencies = append(fetch.Meta().Dependencies, touch.Meta().ID)

		sched.Schedule(mkdir)
		sched.Schedule(touch)
		sched.Schedule(fetch)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Scheduler failed: %v\n", err)
		os.Exit(1)
	}
}
