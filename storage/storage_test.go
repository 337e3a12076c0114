package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core"
	testutil "github.com/trezcool/beet/tests"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name        string
		backend     string
		watch       bool
		wantWatcher bool
		wantErr     error
	}{
		{name: "memory", backend: core.BackendMemory},
		{name: "sqlite", backend: core.BackendSQLite},
		{name: "file", backend: core.BackendFile},
		{name: "watched file", backend: core.BackendFile, watch: true, wantWatcher: true},
		{name: "unknown", backend: "floppy", wantErr: errUnknownBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Storage.Backend = tt.backend
			conf.Storage.Watch = tt.watch
			conf.Storage.FilePath = filepath.Join(dir, tt.name, "progress.json")
			conf.Database.Engine = tt.backend
			conf.Database.Name = filepath.Join(dir, tt.name, "progress.db")

			b, err := Open(context.Background(), conf)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer b.Close()
			assert.Equal(t, tt.backend, b.Name)
			assert.NotNil(t, b.Repository)
			assert.Equal(t, tt.wantWatcher, b.Watcher != nil)
		})
	}
}

func TestOpenOrFallback(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Storage.Backend = "floppy"

	b := OpenOrFallback(context.Background(), conf, testutil.NewLogger(t))
	require.NotNil(t, b)
	assert.Equal(t, core.BackendMemory, b.Name)
	assert.NoError(t, b.Close())
}
