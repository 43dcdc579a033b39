package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/store"
)

// openStore opens and migrates the configured store. It returns nil when the
// store driver is "none".
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// requireStore is openStore for commands that cannot run without one.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store driver is none; set store.driver (FLOWLISA_STORE_DRIVER) to sqlite or postgres")
	}
	return st, nil
}
