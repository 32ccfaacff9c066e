package bfi

import (
	"fmt"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/dd0wney/cluso-bfi/pkg/metrics"
	"github.com/dd0wney/cluso-bfi/pkg/pagestore"
	"github.com/dd0wney/cluso-bfi/pkg/signature"
	"github.com/dd0wney/cluso-bfi/pkg/validation"
)

// Addressing selects how records are identified. It is fixed when a file is
// created and recorded in the header as the format version.
type Addressing uint8

const (
	// SlotAddressed records are identified by their slot number (version 2)
	SlotAddressed Addressing = iota + 1
	// KeyAddressed records carry a caller-chosen uint64 key (version 3)
	KeyAddressed
)

func (a Addressing) String() string {
	switch a {
	case SlotAddressed:
		return "slot"
	case KeyAddressed:
		return "key"
	default:
		return fmt.Sprintf("Addressing(%d)", uint8(a))
	}
}

// ParseAddressing converts "slot" or "key" to an Addressing
func ParseAddressing(s string) (Addressing, error) {
	switch s {
	case "slot", "slots":
		return SlotAddressed, nil
	case "key", "keys", "keyed":
		return KeyAddressed, nil
	}
	return 0, fmt.Errorf("%w: unknown addressing %q", ErrInvalidOptions, s)
}

func (a Addressing) version() uint16 {
	if a == KeyAddressed {
		return pagestore.VersionKeyAddressed
	}
	return pagestore.VersionSlotAddressed
}

func addressingOf(version uint16) Addressing {
	if version == pagestore.VersionKeyAddressed {
		return KeyAddressed
	}
	return SlotAddressed
}

// minValueRoom is the least payload space a slot must keep for values
const minValueRoom = 8

// Options configures an Index. Geometry fields only apply when a new file
// is created; an existing file always uses the geometry in its header.
type Options struct {
	Addressing    Addressing `validate:"oneof=1 2"`
	Create        bool
	ReadOnly      bool
	SlotSize      int `validate:"min=64,max=65536"`
	SlotsPerPage  int `validate:"min=1,max=65536"`
	SignatureBits int `validate:"min=64,max=32768"`
	Hashes        int `validate:"min=1,max=16"`
	CachePages    int `validate:"min=1"`

	Logger  logging.Logger    `validate:"-"`
	Metrics *metrics.Registry `validate:"-"`
}

// DefaultOptions returns options for a slot-addressed index with 512 slots
// of 512 bytes per page and a 1024-bit signature, created on first open.
func DefaultOptions() Options {
	return Options{
		Addressing:    SlotAddressed,
		Create:        true,
		SlotSize:      pagestore.DefaultSlotSize,
		SlotsPerPage:  pagestore.DefaultSlotsPerPage,
		SignatureBits: signature.DefaultBits,
		Hashes:        signature.DefaultHashes,
		CachePages:    pagestore.DefaultCachePages,
	}
}

// Validate checks field ranges and the cross-field geometry rules
func (o Options) Validate() error {
	if err := validation.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	cv := validation.NewConfigValidator("Options").
		MultipleOf("SignatureBits", o.SignatureBits, 8).
		Custom("Hashes", func() error {
			if o.SignatureBits%o.Hashes != 0 {
				return fmt.Errorf("%d hashes do not divide a %d-bit signature", o.Hashes, o.SignatureBits)
			}
			return nil
		}).
		MinInt("SlotSize", o.SlotSize, pagestore.SlotPrefixSize+o.SignatureBits/8+minValueRoom).
		MaxInt("PageSize", o.SlotSize*o.SlotsPerPage, 1<<30)

	if err := cv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options) header() pagestore.Header {
	return pagestore.NewHeader(o.Addressing.version(), o.SlotSize, o.SlotsPerPage, o.SignatureBits, o.Hashes)
}
