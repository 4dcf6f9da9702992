package sqlite

import (
	"fmt"
	"strings"
)

// EngineTuning holds the performance knobs from spec.md §4.1. These are
// pragmas, not correctness settings: NORMAL synchronous mode relies on WAL
// for crash safety of committed transactions, it does not relax the
// durability of a COMMIT itself.
type EngineTuning struct {
	PageCacheKiB int // PRAGMA cache_size, negative-KiB convention
	MmapSizeMiB  int
}

// DefaultEngineTuning matches the defaults a single-process embedded store
// should ship with: WAL mode, NORMAL durability, a modest mmap window.
func DefaultEngineTuning() EngineTuning {
	return EngineTuning{PageCacheKiB: 8192, MmapSizeMiB: 256}
}

// buildDSN folds the engine-tuning pragmas into the connection DSN itself,
// using ncruces/go-sqlite3's repeated _pragma=name(value) convention (the
// same one the teacher uses in internal/storage/sqlite/store_race_test.go
// and freshness_race_test.go: "file:...?_pragma=foreign_keys(ON)&_pragma=
// busy_timeout(...)"). A pragma applied through db.Exec after Open only
// reaches whichever single connection happens to run it; database/sql's
// pool opens further connections lazily and those never see it. Folding the
// pragmas into the DSN means every connection the pool opens — including
// foreign_keys, which spec.md §3's edge referential integrity and §8's
// episode cascade both depend on — gets them applied as part of the
// driver's own connection setup.
func buildDSN(path string, tuning EngineTuning) string {
	pragmas := []string{
		"_pragma=foreign_keys(ON)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		fmt.Sprintf("_pragma=cache_size(-%d)", tuning.PageCacheKiB),
		fmt.Sprintf("_pragma=mmap_size(%d)", tuning.MmapSizeMiB*1024*1024),
	}
	query := strings.Join(pragmas, "&")
	if path == ":memory:" {
		return "file::memory:?" + query
	}
	return "file:" + path + "?" + query
}
