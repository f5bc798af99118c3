// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package interrupt turns termination signals into context cancellation so
// that module-cli commands stop at a block boundary. A block that is being
// executed when the signal arrives is still committed or aborted, leaving
// the base module store consistent.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/inconshreveable/log15"
)

// ErrCanceled is returned by workloads stopped by a signal.
const ErrCanceled = common.ConstError("interrupted")

var logger = log15.New("module", "interrupt")

// IsCancelled returns true if the given context's CancelFunc has been called.
// Otherwise, returns false.
func IsCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Register returns a context cancelled on the first SIGINT or SIGTERM.
// Workloads poll it with IsCancelled before each block and return
// ErrCanceled. Further signals fall back to the default handling, so a
// second interrupt terminates the process immediately.
func Register(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			logger.Warn("Interrupted, finishing the current block before shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
