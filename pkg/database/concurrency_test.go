package database

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikubooks/kiku/pkg/config"
)

// newTestConfig creates a config with a temp file database.
// Using a file instead of :memory: ensures multiple connections share
// the same database, which is required to test lock contention.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := config.NewForTest()
	cfg.DatabaseFilePath = filepath.Join(tmpDir, "test.db")
	// Reduce retry safety nets to make lock errors surface faster.
	cfg.DatabaseMaxRetries = 0
	cfg.DatabaseBusyTimeout = 1_000_000 // 1ms
	return cfg
}

// Session syncs from many clients land as concurrent writes on the same
// database. They must all complete without "database is locked" errors.
func TestConcurrentWrites(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		device_id INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	const numDevices = 20
	const syncsPerDevice = 50

	var wg sync.WaitGroup
	var errorCount atomic.Int32
	var successCount atomic.Int32
	errs := make(chan error, numDevices*syncsPerDevice)

	for d := 0; d < numDevices; d++ {
		wg.Add(1)
		go func(deviceID int) {
			defer wg.Done()
			for i := 0; i < syncsPerDevice; i++ {
				_, err := db.Exec(
					"INSERT INTO sync_log (session_id, device_id) VALUES (?, ?)",
					fmt.Sprintf("play_%d_%d", deviceID, i),
					deviceID,
				)
				if err != nil {
					errorCount.Add(1)
					errs <- fmt.Errorf("device %d sync %d: %w", deviceID, i, err)
				} else {
					successCount.Add(1)
				}
			}
		}(d)
	}

	wg.Wait()
	close(errs)

	var allErrors []error
	for err := range errs {
		allErrors = append(allErrors, err)
	}

	assert.Empty(t, allErrors, "concurrent writes should not produce errors")
	assert.Equal(t, int32(0), errorCount.Load())
	assert.Equal(t, int32(numDevices*syncsPerDevice), successCount.Load())

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sync_log").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, numDevices*syncsPerDevice, count)
}

// The scan worker writes the catalog while clients read progress; mixed
// concurrent reads and writes must not trip over each other.
func TestConcurrentMixedOperations(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS listen_seconds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seconds INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err = db.Exec("INSERT INTO listen_seconds (seconds) VALUES (?)", i)
		require.NoError(t, err)
	}

	const numWorkers = 8
	const opsPerWorker = 100

	var wg sync.WaitGroup
	var writeErrors atomic.Int32
	var readErrors atomic.Int32
	var writes atomic.Int32
	var reads atomic.Int32

	// Half the workers write, half read.
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		if w%2 == 0 {
			go func(workerID int) {
				defer wg.Done()
				for i := 0; i < opsPerWorker; i++ {
					_, err := db.Exec("INSERT INTO listen_seconds (seconds) VALUES (?)", workerID*1000+i)
					if err != nil {
						writeErrors.Add(1)
					} else {
						writes.Add(1)
					}
				}
			}(w)
		} else {
			go func(workerID int) {
				defer wg.Done()
				for i := 0; i < opsPerWorker; i++ {
					var sum int
					err := db.QueryRow("SELECT SUM(seconds) FROM listen_seconds").Scan(&sum)
					if err != nil {
						readErrors.Add(1)
					} else {
						reads.Add(1)
					}
				}
			}(w)
		}
	}

	wg.Wait()

	assert.Equal(t, int32(0), writeErrors.Load(), "no write errors should occur")
	assert.Equal(t, int32(0), readErrors.Load(), "no read errors should occur")

	expectedWrites := int32((numWorkers / 2) * opsPerWorker)
	expectedReads := int32((numWorkers / 2) * opsPerWorker)
	assert.Equal(t, expectedWrites, writes.Load(), "all writes should complete")
	assert.Equal(t, expectedReads, reads.Load(), "all reads should complete")
}
