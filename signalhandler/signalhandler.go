// Package signalhandler ties process lifetime to SIGINT/SIGTERM and sizes the
// CPU worker pool.
package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, so OpenCV
// work in flight can finish and release its matrices before exit
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// OptimalProcs returns the number of hashing workers for this machine
func OptimalProcs() int {
	return optimalProcs(runtime.NumCPU())
}

// For image processing with cgo, using every core starves the request goroutines
func optimalProcs(numCPU int) int {
	return max((numCPU*3)/4, 1)
}

// Workers resolves a configured worker count, where zero or less means optimal
func Workers(configured int) int {
	if configured > 0 {
		return configured
	}
	return OptimalProcs()
}
