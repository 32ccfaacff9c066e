package bfi

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

// Lookup returns every record whose values include all of terms. Slot
// results come back in ascending slot order. Key results are sorted by key,
// not by the slot that holds them, so after deletes and slot reuse the order
// differs from the slot scan order older key-addressed readers returned.
// A record is only returned after its stored values are compared with
// terms, so Bloom false positives never reach the caller.
func (i *Index) Lookup(terms []string) (ids []ID, err error) {
	defer i.observe("lookup", time.Now(), &err)

	if err := i.checkOpen("lookup"); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, NewError("lookup").Cause(ErrNoLookupValues).Err()
	}

	mask := i.codec.Encode(terms)
	ids = make([]ID, 0)
	candidates := 0
	err = i.store.ForEachSlot(i.alloc.Capacity(), func(slot uint64, buf []byte) error {
		if !isLive(buf) || !i.layout.signature(buf).Covers(mask) {
			return nil
		}
		candidates++
		if i.layout.containsAll(buf, terms) {
			ids = append(ids, i.addr.identify(slot, buf))
		}
		return nil
	})
	if err != nil {
		return nil, NewError("lookup").Path(i.path).Cause(err).Err()
	}
	if i.addr.mode() == KeyAddressed {
		slices.Sort(ids)
	}

	i.metrics.RecordLookup(candidates, len(ids))
	precision := 1.0
	if candidates > 0 {
		precision = float64(len(ids)) / float64(candidates)
	}
	i.logger.Debug("lookup",
		logging.Count(len(terms)),
		logging.Int("candidates", candidates),
		logging.Int("matches", len(ids)),
		logging.Float64("precision", precision))
	return ids, nil
}
