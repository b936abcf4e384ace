// Memory and connection profiling for the key-value store. Every timeline
// refresh and layout mutation goes through here, so statements and
// connections must not accumulate.
package db

import (
	"fmt"
	"runtime"
	"testing"
)

// getMemoryStats returns current memory statistics
func getMemoryStats() runtime.MemStats {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats
}

// formatBytes formats bytes to human-readable string
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestMemoryLeakLayoutWrites rewrites the column layout repeatedly, the way
// pin toggles and moves do.
func TestMemoryLeakLayoutWrites(t *testing.T) {
	store := newTestKV(t)

	layout := `[{"id":"c1","type":"home","title":"Home"},{"id":"c2","type":"notifications","title":"Notifications"}]`

	runtime.GC()
	initialStats := getMemoryStats()

	const iterations = 1000
	for i := 0; i < iterations; i++ {
		if err := store.Set("mastofy_columns", layout); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
		pinKey := fmt.Sprintf("mastofy_column_pinned_c%d", i%10)
		if err := store.Set(pinKey, "true"); err != nil {
			t.Fatalf("Set(pin) failed: %v", err)
		}
		if _, _, err := store.Get("mastofy_columns"); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if err := store.Remove(pinKey); err != nil {
			t.Fatalf("Remove() failed: %v", err)
		}

		if (i+1)%250 == 0 {
			runtime.GC()
			current := getMemoryStats()
			t.Logf("After %d iterations: Alloc %s, TotalAlloc %s",
				i+1, formatBytes(current.Alloc), formatBytes(current.TotalAlloc-initialStats.TotalAlloc))
		}
	}

	runtime.GC()
	finalStats := getMemoryStats()

	var allocChange uint64
	if finalStats.Alloc > initialStats.Alloc {
		allocChange = finalStats.Alloc - initialStats.Alloc
	}
	t.Logf("Memory change after %d iterations: +%s", iterations, formatBytes(allocChange))

	if allocChange > 5*1024*1024 {
		t.Errorf("Potential memory leak detected: allocated memory grew by %s", formatBytes(allocChange))
	}

	// Three distinct queries, each prepared once.
	var cached int
	store.stmtCache.Range(func(key, value interface{}) bool {
		cached++
		return true
	})
	if cached != 3 {
		t.Errorf("statement cache holds %d statements, want 3", cached)
	}
}

// TestMemoryLeakConnectionPool checks that reads release their connection.
func TestMemoryLeakConnectionPool(t *testing.T) {
	store := newTestKV(t)
	if err := store.Set("mastofy_auth", `{"accessToken":"tok","instance":"social.example"}`); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	const iterations = 500
	for i := 0; i < iterations; i++ {
		if _, _, err := store.Get("mastofy_auth"); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if _, _, err := store.Get("missing"); err != nil {
			t.Fatalf("Get(missing) failed: %v", err)
		}
	}

	stats := store.db.Stats()
	t.Logf("OpenConnections=%d, InUse=%d, Idle=%d", stats.OpenConnections, stats.InUse, stats.Idle)

	if stats.InUse > 0 {
		t.Errorf("Connection leak detected: %d connections still in use", stats.InUse)
	}
	if stats.OpenConnections > 1 {
		t.Errorf("OpenConnections = %d, want at most 1", stats.OpenConnections)
	}
}

// BenchmarkKVStoreGet benchmarks session and layout reads.
func BenchmarkKVStoreGet(b *testing.B) {
	database, err := OpenMemory()
	if err != nil {
		b.Fatalf("OpenMemory() failed: %v", err)
	}
	defer database.Close()
	store := NewKVStore(database)
	defer store.Close()

	if err := store.Set("mastofy_columns", `[{"id":"c1","type":"home","title":"Home"}]`); err != nil {
		b.Fatalf("Set() failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := store.Get("mastofy_columns"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkKVStoreSet benchmarks layout writes.
func BenchmarkKVStoreSet(b *testing.B) {
	database, err := OpenMemory()
	if err != nil {
		b.Fatalf("OpenMemory() failed: %v", err)
	}
	defer database.Close()
	store := NewKVStore(database)
	defer store.Close()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := store.Set("mastofy_columns", fmt.Sprintf(`[{"id":"c%d"}]`, i)); err != nil {
			b.Fatal(err)
		}
	}
}
