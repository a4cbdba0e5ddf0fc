package testsupport

import (
	"testing"

	"storyloom/internal/config"
	"storyloom/internal/runstore"
)

// MustOpenRunStore opens a runstore.Store for tests and registers cleanup.
func MustOpenRunStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("runstore.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
