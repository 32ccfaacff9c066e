package bfi

import (
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// narrowOptions uses a 64-bit signature so collisions are common and the
// verification step does real work. A slot keeps 44 bytes for values.
func narrowOptions(addressing Addressing) Options {
	opts := smallOptions(addressing)
	opts.SignatureBits = 64
	opts.Hashes = 2
	return opts
}

// maxPropertyTags caps a record so its tags always fit a narrow slot
const maxPropertyTags = 8

func tagGen() gopter.Gen {
	return gen.IntRange(0, 15).Map(func(n int) string { return fmt.Sprintf("t%d", n) })
}

// bruteForce returns the positions of every record holding all terms
func bruteForce(records [][]string, terms []string) []ID {
	out := make([]ID, 0)
	for i, values := range records {
		match := true
		for _, term := range terms {
			if !slices.Contains(values, term) {
				match = false
				break
			}
		}
		if match {
			out = append(out, ID(i))
		}
	}
	return out
}

func TestLookupMatchesBruteForce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("lookup equals a linear scan of the stored values", prop.ForAll(
		func(raw [][]string, query []string) bool {
			records := make([][]string, 0, len(raw))
			for _, values := range raw {
				if len(values) == 0 {
					continue
				}
				records = append(records, values[:min(len(values), maxPropertyTags)])
			}
			if len(query) == 0 {
				return true
			}

			idx, err := Open(filepath.Join(t.TempDir(), "prop.bfi"), narrowOptions(SlotAddressed))
			if err != nil {
				t.Logf("Open() error = %v", err)
				return false
			}
			defer idx.Close()

			for _, values := range records {
				if _, err := idx.Append(values); err != nil {
					t.Logf("Append(%q) error = %v", values, err)
					return false
				}
			}
			got, err := idx.Lookup(query)
			if err != nil {
				t.Logf("Lookup(%q) error = %v", query, err)
				return false
			}
			want := bruteForce(records, query)
			if !slices.Equal(got, want) {
				t.Logf("Lookup(%q) = %v, want %v", query, got, want)
				return false
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(tagGen())),
		gen.SliceOfN(2, tagGen()),
	))

	properties.TestingRun(t)
}

func TestKeyedOperationsMatchModel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	// Positive op inserts that key, negative deletes it, zero syncs
	properties.Property("insert and delete agree with a map across reopen", prop.ForAll(
		func(ops []int) bool {
			opts := narrowOptions(KeyAddressed)
			path := filepath.Join(t.TempDir(), "model.bfi")
			idx, err := Open(path, opts)
			if err != nil {
				return false
			}

			model := make(map[ID]bool)
			for _, op := range ops {
				switch {
				case op > 0:
					key := ID(op)
					if model[key] {
						continue
					}
					if err := idx.Insert(key, []string{"all", fmt.Sprintf("m%d", op%5)}); err != nil {
						t.Logf("Insert(%d) error = %v", key, err)
						return false
					}
					model[key] = true
				case op < 0:
					key := ID(-op)
					if !model[key] {
						continue
					}
					if err := idx.Delete(key); err != nil {
						t.Logf("Delete(%d) error = %v", key, err)
						return false
					}
					delete(model, key)
				default:
					if _, err := idx.Sync(); err != nil {
						return false
					}
				}
			}

			want := make([]ID, 0, len(model))
			for key := range model {
				want = append(want, key)
			}
			slices.Sort(want)

			check := func(idx *Index) bool {
				got, err := idx.Lookup([]string{"all"})
				if err != nil || !slices.Equal(got, want) {
					t.Logf("Lookup(all) = %v, %v, want %v", got, err, want)
					return false
				}
				return idx.Verify() == nil && idx.Len() == len(model)
			}
			if !check(idx) || idx.Close() != nil {
				return false
			}

			reopened, err := Open(path, opts)
			if err != nil {
				return false
			}
			defer reopened.Close()
			return check(reopened)
		},
		gen.SliceOf(gen.IntRange(-20, 20)),
	))

	properties.TestingRun(t)
}
