// Concurrency smoke test: hammers a shared engine from many goroutines
// and checks that reads never observe torn or out-of-range state.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"stashdb/query"
	"stashdb/storage"
)

func main() {
	fmt.Println("stashdb concurrency test")
	fmt.Println("========================")

	tmpDir, err := os.MkdirTemp("", "conctest-*")
	if err != nil {
		fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	eng, err := storage.Open(filepath.Join(tmpDir, "conctest.db"), false)
	if err != nil {
		fatalf("open storage: %v", err)
	}

	passed, failed := 0, 0
	for _, sc := range []struct {
		name string
		fn   func(*storage.Engine) bool
	}{
		{"Setup", scenarioSetup},
		{"Concurrent reads", scenarioConcurrentReads},
		{"Reads during writes", scenarioReadsDuringWrites},
		{"Concurrent writes", scenarioConcurrentWrites},
	} {
		if sc.fn(eng) {
			passed++
		} else {
			failed++
		}
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func scenarioSetup(eng *storage.Engine) bool {
	start := time.Now()

	for i := 1; i <= 100; i++ {
		key := fmt.Sprintf("row%03d", i)
		raw := fmt.Sprintf(`{"id": %d, "val": "row%d"}`, i, i)
		if _, err := eng.Create(key, raw); err != nil {
			return fail("Setup", "create %s: %v", key, err)
		}
	}

	if n := len(eng.Entries()); n != 100 {
		return fail("Setup", "expected 100 keys, got %d", n)
	}
	return pass("Setup", "inserted 100 keys", time.Since(start))
}

func scenarioConcurrentReads(eng *storage.Engine) bool {
	start := time.Now()
	const goroutines = 10
	const readsPerGoroutine = 50

	var wg sync.WaitGroup
	var errCount atomic.Int64

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := 0; q < readsPerGoroutine; q++ {
				key := fmt.Sprintf("row%03d", q%100+1)
				if _, err := eng.Read(key); err != nil {
					errCount.Add(1)
					continue
				}
				keys, err := eng.Find(query.Query{Predicate: query.Range{Field: "id", Above: true, Bound: 0}})
				if err != nil || len(keys) != 100 {
					errCount.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	errs := errCount.Load()
	total := goroutines * readsPerGoroutine
	if errs > 0 {
		return fail("Concurrent reads", "%d errors out of %d reads", errs, total)
	}
	return pass("Concurrent reads",
		fmt.Sprintf("%d goroutines × %d reads = %d total, 0 errors", goroutines, readsPerGoroutine, total),
		time.Since(start))
}

func scenarioReadsDuringWrites(eng *storage.Engine) bool {
	start := time.Now()
	const readers = 10

	var wg sync.WaitGroup
	var errCount atomic.Int64
	var minCount, maxCount atomic.Int64
	minCount.Store(999999)

	// Writer goroutine: insert keys 101-200.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 101; i <= 200; i++ {
			key := fmt.Sprintf("row%03d", i)
			raw := fmt.Sprintf(`{"id": %d, "val": "row%d"}`, i, i)
			if _, err := eng.Create(key, raw); err != nil {
				errCount.Add(1)
			}
		}
	}()

	// Reader goroutines: repeatedly count keys while writes happen.
	for g := 0; g < readers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := 0; q < 50; q++ {
				count := int64(len(eng.Entries()))
				for {
					cur := minCount.Load()
					if count >= cur || minCount.CompareAndSwap(cur, count) {
						break
					}
				}
				for {
					cur := maxCount.Load()
					if count <= cur || maxCount.CompareAndSwap(cur, count) {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	errs := errCount.Load()
	lo, hi := minCount.Load(), maxCount.Load()

	if errs > 0 {
		return fail("Reads during writes", "%d errors", errs)
	}
	if lo < 100 || hi > 200 {
		return fail("Reads during writes", "counts out of range: [%d..%d]", lo, hi)
	}
	if n := len(eng.Entries()); n != 200 {
		return fail("Reads during writes", "final count %d, expected 200", n)
	}

	return pass("Reads during writes",
		fmt.Sprintf("100 keys inserted while reading, counts in [%d..%d], 0 errors", lo, hi),
		time.Since(start))
}

func scenarioConcurrentWrites(eng *storage.Engine) bool {
	start := time.Now()
	const goroutines = 10
	const keysPerGoroutine = 10

	var wg sync.WaitGroup
	var errCount atomic.Int64

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			base := 201 + g*keysPerGoroutine
			for i := 0; i < keysPerGoroutine; i++ {
				id := base + i
				key := fmt.Sprintf("row%03d", id)
				raw := fmt.Sprintf(`{"id": %d, "val": "row%d"}`, id, id)
				if _, err := eng.Create(key, raw); err != nil {
					errCount.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	if errs := errCount.Load(); errs > 0 {
		return fail("Concurrent writes", "%d insert errors", errs)
	}
	if n := len(eng.Entries()); n != 300 {
		return fail("Concurrent writes", "final count %d, expected 300", n)
	}

	return pass("Concurrent writes",
		fmt.Sprintf("%d goroutines × %d keys = %d inserts, final count 300",
			goroutines, keysPerGoroutine, goroutines*keysPerGoroutine),
		time.Since(start))
}

func pass(name, detail string, d time.Duration) bool {
	fmt.Printf("[PASS] %s: %s (%dms)\n", name, detail, d.Milliseconds())
	return true
}

func fail(name, format string, args ...any) bool {
	fmt.Printf("[FAIL] %s: %s\n", name, fmt.Sprintf(format, args...))
	return false
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(2)
}
