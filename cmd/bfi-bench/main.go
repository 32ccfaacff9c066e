package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

const fields = 10

// backend is one store under test
type backend interface {
	Name() string
	Add(ctx context.Context, pk int, values []string) error
	Sync(ctx context.Context) error
	Lookup(ctx context.Context, terms []string) ([]int, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}

func main() {
	count := flag.Int("count", 100000, "Number of records to index")
	lookups := flag.Int("lookups", 100, "Repetitions per lookup benchmark")
	dataDir := flag.String("data", "./data/bench", "Data directory")
	pgURL := flag.String("pg", os.Getenv("BFI_BENCH_PG"), "PostgreSQL URL for a baseline run (optional)")
	flag.Parse()

	logger := logging.DefaultLogger().With(logging.Component("bench"))

	fmt.Printf("Bloom filter index benchmark\n")
	fmt.Printf("============================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Records: %d x %d fields\n", *count, fields)
	fmt.Printf("  Lookups: %d per query\n", *lookups)
	fmt.Printf("  Data Directory: %s\n\n", *dataDir)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	ctx := context.Background()
	path := filepath.Join(*dataDir, "bench.bfi")
	_ = os.Remove(path)
	b, err := newBFIBackend(path, logger)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	backends := []backend{b}

	if *pgURL != "" {
		pg, err := newPGBackend(ctx, *pgURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		backends = append(backends, pg)
	}

	for _, be := range backends {
		if err := runBenchmark(ctx, be, *count, *lookups); err != nil {
			log.Fatalf("%s: %v", be.Name(), err)
		}
		if err := be.Close(); err != nil {
			log.Printf("%s: close failed: %v", be.Name(), err)
		}
	}
}

func record(i int) []string {
	values := make([]string, fields)
	for f := range values {
		values[f] = fmt.Sprintf("FOO_%d:This is a test %d", f, i)
	}
	return values
}

func runBenchmark(ctx context.Context, be backend, count, lookups int) error {
	fmt.Printf("## %s ##\n", be.Name())

	start := time.Now()
	for i := 0; i < count; i++ {
		if err := be.Add(ctx, i, record(i)); err != nil {
			return fmt.Errorf("add %d: %w", i, err)
		}
	}
	if err := be.Sync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	report("INDEX", time.Since(start), 1)

	target := count * 82435 / 100000
	one := []string{fmt.Sprintf("FOO_6:This is a test %d", target)}
	three := []string{
		fmt.Sprintf("FOO_6:This is a test %d", target),
		fmt.Sprintf("FOO_8:This is a test %d", target),
		fmt.Sprintf("FOO_2:This is a test %d", target),
	}

	for _, q := range []struct {
		name  string
		terms []string
	}{{"LOOKUP (1)", one}, {"LOOKUP (3)", three}} {
		got, err := be.Lookup(ctx, q.terms)
		if err != nil {
			return err
		}
		if !slices.Equal(got, []int{target}) {
			return fmt.Errorf("%s returned %v, want [%d]", q.name, got, target)
		}
		start := time.Now()
		for n := 0; n < lookups; n++ {
			if _, err := be.Lookup(ctx, q.terms); err != nil {
				return err
			}
		}
		report(q.name, time.Since(start), lookups)
	}

	size, err := be.Size(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%30s:    %dMB\n\n", "SIZE", size/1000000)
	return nil
}

func report(method string, d time.Duration, n int) {
	fmt.Printf("%30s:    %0.5fs\n", method, d.Seconds()/float64(n))
}

// bfiBackend drives a key-addressed index
type bfiBackend struct {
	index *bfi.Index
}

func newBFIBackend(path string, logger logging.Logger) (*bfiBackend, error) {
	opts := bfi.DefaultOptions()
	opts.Addressing = bfi.KeyAddressed
	opts.Logger = logger
	index, err := bfi.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &bfiBackend{index: index}, nil
}

func (b *bfiBackend) Name() string { return "BFI" }

func (b *bfiBackend) Add(_ context.Context, pk int, values []string) error {
	return b.index.Insert(bfi.ID(pk), values)
}

func (b *bfiBackend) Sync(context.Context) error {
	_, err := b.index.Sync()
	return err
}

func (b *bfiBackend) Lookup(_ context.Context, terms []string) ([]int, error) {
	ids, err := b.index.Lookup(terms)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out, nil
}

func (b *bfiBackend) Size(context.Context) (int64, error) {
	st, err := b.index.Stat()
	return st.Size, err
}

func (b *bfiBackend) Close() error { return b.index.Close() }
