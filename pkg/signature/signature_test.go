package signature

import (
	"fmt"
	"testing"
)

func TestNew_Geometry(t *testing.T) {
	tests := []struct {
		name    string
		bits    int
		hashes  int
		wantErr bool
	}{
		{"default", DefaultBits, DefaultHashes, false},
		{"2048 bits", 2048, 4, false},
		{"single hash", 64, 1, false},
		{"zero hashes", 1024, 0, true},
		{"not byte aligned", 1020, 4, true},
		{"uneven sectors", 1024, 3, true},
		{"too small", 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.bits, tt.hashes)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.bits, tt.hashes, err, tt.wantErr)
			}
		})
	}
}

func TestCodec_PositionsDeterministic(t *testing.T) {
	c := Default()
	a := c.Positions("FIRST-576")
	b := Default().Positions("FIRST-576")

	if len(a) != DefaultHashes {
		t.Fatalf("got %d positions, want %d", len(a), DefaultHashes)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("position %d differs between codecs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestCodec_OnePositionPerSector(t *testing.T) {
	c := Default()
	sector := uint32(c.Bits() / c.Hashes())

	for i := 0; i < 1000; i++ {
		for n, p := range c.Positions(fmt.Sprintf("value-%d", i)) {
			if p/sector != uint32(n) {
				t.Fatalf("position %d of value-%d = %d, outside sector %d", n, i, p, n)
			}
			if p >= uint32(c.Bits()) {
				t.Fatalf("position %d out of range", p)
			}
		}
	}
}

func TestSignature_NoFalseNegatives(t *testing.T) {
	c := Default()
	values := []string{"apple", "banana", "cherry", "FIRST-1", "SECOND-1"}
	sig := c.Encode(values)

	if len(sig) != c.Bytes() {
		t.Fatalf("signature length = %d, want %d", len(sig), c.Bytes())
	}
	for _, v := range values {
		if !sig.Test(c.Positions(v)) {
			t.Errorf("value %q not found in its own signature", v)
		}
		if !sig.Covers(c.Encode([]string{v})) {
			t.Errorf("signature does not cover mask of %q", v)
		}
	}
	if !sig.Covers(c.Encode(values)) {
		t.Error("signature does not cover mask of all its values")
	}
}

func TestSignature_FalsePositiveRate(t *testing.T) {
	c := Default()
	tags := make([]string, 10)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag-%d", i)
	}
	sig := c.Encode(tags)

	falsePositives := 0
	trials := 10000
	for i := 0; i < trials; i++ {
		if sig.Covers(c.Encode([]string{fmt.Sprintf("absent-%d", i)})) {
			falsePositives++
		}
	}

	// Expected rate is around 2e-6 for 10 tags
	if falsePositives > 3 {
		t.Errorf("false positives = %d of %d, estimate %.2e", falsePositives, trials, c.EstimateFalsePositiveRate(10))
	}
}

func TestCodec_EstimateFalsePositiveRate(t *testing.T) {
	c := Default()

	if got := c.EstimateFalsePositiveRate(0); got != 0 {
		t.Errorf("rate for empty record = %v, want 0", got)
	}

	low := c.EstimateFalsePositiveRate(2)
	high := c.EstimateFalsePositiveRate(50)
	if !(low < high) {
		t.Errorf("rate should grow with tag count: 2 tags %v, 50 tags %v", low, high)
	}
	if high >= 1 {
		t.Errorf("rate %v out of range", high)
	}
}

func TestSignature_Union(t *testing.T) {
	c := Default()
	a := c.Encode([]string{"a"})
	b := c.Encode([]string{"b"})

	if err := a.Union(b); err != nil {
		t.Fatalf("Union() error = %v", err)
	}
	if !a.Equal(c.Encode([]string{"a", "b"})) {
		t.Error("union of single-value signatures should equal combined signature")
	}

	small, _ := New(64, 1)
	if err := a.Union(small.Encode([]string{"a"})); err != ErrWidthMismatch {
		t.Errorf("Union() with mismatched width error = %v, want %v", err, ErrWidthMismatch)
	}
}

func TestSignature_CoversEmptyMask(t *testing.T) {
	c := Default()
	sig := make(Signature, c.Bytes())
	if !sig.Covers(make(Signature, c.Bytes())) {
		t.Error("every signature covers the empty mask")
	}
	if sig.Covers(c.Encode([]string{"x"})) {
		t.Error("empty signature should not cover a non-empty mask")
	}
}
