package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/pipeline"
	"github.com/ppiankov/freightaudit/internal/store"
)

const banner = "═══════════════════════════════════════════════════════════"

func printBanner(title string) {
	fmt.Fprintf(os.Stderr, "\n%s\n  %s\n%s\n\n", banner, title, banner)
}

// openStore connects the configured store. It returns nil without a driver.
func openStore(c *model.Config) (*store.Store, error) {
	if c.Store.Driver == "" {
		return nil, nil
	}
	if c.Store.DSN == "" {
		return nil, fmt.Errorf("store driver %s configured without a DSN (set FREIGHTAUDIT_STORE_DSN)", c.Store.Driver)
	}
	return store.Open(c.Store.Driver, c.Store.DSN, logger.Named("store"))
}

// newPipeline builds a pipeline from the resolved configuration, persisting
// runs when a store is configured. The returned func releases the store.
func newPipeline(c *model.Config) (*pipeline.Pipeline, *store.Store, func(), error) {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	st, err := openStore(c)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {}
	if st != nil {
		opts = append(opts, pipeline.WithStore(st))
		cleanup = func() {
			if err := st.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
		}
	}

	p, err := pipeline.New(c, opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return p, st, cleanup, nil
}
