package validation

import (
	"strings"
	"testing"
)

type geometry struct {
	SlotSize int    `validate:"min=64,max=65536"`
	Hashes   int    `validate:"min=1,max=16"`
	Mode     string `validate:"oneof=slot key"`
	Path     string `validate:"required"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      geometry
		wantErr string
	}{
		{"valid", geometry{512, 4, "key", "a.bfi"}, ""},
		{"slot too small", geometry{32, 4, "key", "a.bfi"}, "SlotSize: must be at least 64"},
		{"too many hashes", geometry{512, 40, "key", "a.bfi"}, "Hashes: must not exceed 16"},
		{"bad mode", geometry{512, 4, "pk", "a.bfi"}, "Mode: must be one of [slot key]"},
		{"missing path", geometry{512, 4, "slot", ""}, "Path: field is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Struct() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Struct() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStruct_ReportsEveryField(t *testing.T) {
	err := Struct(geometry{SlotSize: 1, Hashes: 0, Mode: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"SlotSize", "Hashes", "Mode", "Path"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q missing %s", err, field)
		}
	}
}

func TestStruct_Nil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("Struct(nil) should fail")
	}
}
