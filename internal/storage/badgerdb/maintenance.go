package badgerdb

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ternarybob/conspectus/internal/common"
)

const (
	// gcInterval is how often value log garbage collection runs
	gcInterval = 10 * time.Minute

	// gcDiscardRatio triggers a rewrite when at least half of a value log
	// file is stale
	gcDiscardRatio = 0.5
)

// StartGC launches periodic value log garbage collection. Badger never
// reclaims value log space on its own, so a long-running store grows
// without this.
func (b *BadgerDB) StartGC() {
	if b.gcStop != nil {
		return
	}
	b.gcStop = make(chan struct{})

	common.SafeGo(b.logger, "badger-gc", func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.gcStop:
				return
			case <-ticker.C:
				b.runGC()
			}
		}
	})

	b.logger.Debug().Dur("interval", gcInterval).Msg("Badger value log GC started")
}

// StopGC stops the garbage collection loop. Safe to call when GC was
// never started.
func (b *BadgerDB) StopGC() {
	if b.gcStop != nil {
		close(b.gcStop)
		b.gcStop = nil
	}
}

// runGC repeats collection while rewrites succeed. ErrNoRewrite means
// nothing is worth compacting this cycle.
func (b *BadgerDB) runGC() {
	for {
		err := b.store.Badger().RunValueLogGC(gcDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn().Err(err).Msg("Badger value log GC failed")
			}
			return
		}
		b.logger.Debug().Msg("Badger value log GC reclaimed a log file")
	}
}
