package ppindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// benchHeader is a guarded header with a mix of object-like and
// function-like macros and conditional blocks.
const benchHeader = `#ifndef BENCH_CONFIG_H
#define BENCH_CONFIG_H

#define BENCH_VERSION_MAJOR 1
#define BENCH_VERSION_MINOR 4
#define BENCH_VERSION ((BENCH_VERSION_MAJOR << 8) | BENCH_VERSION_MINOR)

#define MIN(a, b) ((a) < (b) ? (a) : (b))
#define MAX(a, b) ((a) > (b) ? (a) : (b))
#define CLAMP(x, lo, hi) MIN(MAX(x, lo), hi)

#ifdef BENCH_DEBUG
#define TRACE(msg) bench_trace(__FILE__, __LINE__, msg)
#else
#define TRACE(msg) ((void)0)
#endif

#if defined(BENCH_THREADS) && BENCH_THREADS > 1
#define BENCH_PARALLEL 1
#endif

#endif
`

// writeBenchProject writes units .c files that all include config.h.
func writeBenchProject(b *testing.B, dir string, units int) {
	b.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.h"), []byte(benchHeader), 0o644); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < units; i++ {
		var sb strings.Builder
		sb.WriteString("#include \"config.h\"\n")
		fmt.Fprintf(&sb, "#define UNIT_ID %d\n", i)
		for j := 0; j < 20; j++ {
			fmt.Fprintf(&sb, "int f%d_%d(int x) { TRACE(\"f\"); return CLAMP(x, UNIT_ID, BENCH_VERSION); }\n", i, j)
		}
		sb.WriteString("#ifdef BENCH_PARALLEL\nint parallel = 1;\n#endif\n")
		name := filepath.Join(dir, fmt.Sprintf("unit%03d.c", i))
		if err := os.WriteFile(name, []byte(sb.String()), 0o644); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkIndexDirectory(b *testing.B, parallel bool) {
	ctx := context.Background()
	src := b.TempDir()
	writeBenchProject(b, src, 32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e, err := New(filepath.Join(b.TempDir(), "bench.db"), WithParallel(parallel))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if err := e.IndexDirectory(ctx, src); err != nil {
			e.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		e.Close()
		b.StartTimer()
	}
}

// BenchmarkIndexDirectory_Serial measures a cold index of 32 units.
func BenchmarkIndexDirectory_Serial(b *testing.B) { benchmarkIndexDirectory(b, false) }

// BenchmarkIndexDirectory_Parallel measures the same index through the
// worker pipeline.
func BenchmarkIndexDirectory_Parallel(b *testing.B) { benchmarkIndexDirectory(b, true) }

// BenchmarkIndexDirectory_Unchanged measures a re-index where every unit's
// fingerprint matches.
func BenchmarkIndexDirectory_Unchanged(b *testing.B) {
	ctx := context.Background()
	src := b.TempDir()
	writeBenchProject(b, src, 32)
	e, err := New(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if err := e.IndexDirectory(ctx, src); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.IndexDirectory(ctx, src); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQueryMacro measures a by-name lookup with definitions.
func BenchmarkQueryMacro(b *testing.B) {
	ctx := context.Background()
	src := b.TempDir()
	writeBenchProject(b, src, 32)
	e, err := New(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if err := e.IndexDirectory(ctx, src); err != nil {
		b.Fatal(err)
	}
	q := e.Query()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.ReferencesByName("CLAMP", "usage"); err != nil {
			b.Fatal(err)
		}
	}
}
