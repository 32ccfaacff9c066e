package bfi

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/alloc"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

// Verify reads every slot and checks that live flags agree with the free
// list, that each live slot decodes, and that its signature is the encoding
// of its values. It reports the first fault found as a ConsistencyFault.
func (i *Index) Verify() (err error) {
	defer i.observe("verify", time.Now(), &err)

	if err := i.checkOpen("verify"); err != nil {
		return err
	}

	var live uint64
	err = i.store.ForEachSlot(i.alloc.Capacity(), func(slot uint64, buf []byte) error {
		if !isLive(buf) {
			if !i.alloc.IsFree(slot) {
				return NewError("verify").Slot(slot).
					Cause(fmt.Errorf("%w: slot %d is neither live nor free", ErrCorruptFreeList, slot)).Err()
			}
			return nil
		}
		if i.alloc.IsFree(slot) {
			return NewError("verify").Slot(slot).
				Cause(fmt.Errorf("%w: live slot %d on free list", ErrCorruptFreeList, slot)).Err()
		}
		live++

		values, err := i.layout.values(buf)
		if err != nil {
			return NewError("verify").Slot(slot).Cause(err).Err()
		}
		if len(values) == 0 {
			return NewError("verify").Slot(slot).
				Cause(fmt.Errorf("%w: live slot without values", ErrCorruptSlot)).Err()
		}
		if !i.codec.Encode(values).Equal(i.layout.signature(buf)) {
			return NewError("verify").Slot(slot).Cause(ErrCorruptSlot).Err()
		}
		if i.addr.mode() == KeyAddressed {
			key := i.addr.identify(slot, buf)
			if mapped, err := i.addr.resolve(key); err != nil || mapped != slot {
				return NewError("verify").Slot(slot).Key(uint64(key)).
					Cause(fmt.Errorf("%w: key map disagrees with slot", ErrCorruptSlot)).Err()
			}
		}
		return nil
	})

	if err == nil && live != i.alloc.Live() {
		err = fmt.Errorf("%w: %d live slots, allocator counts %d", alloc.ErrInconsistent, live, i.alloc.Live())
	}
	if err == nil {
		err = i.alloc.Check()
	}
	if err != nil {
		i.logger.Error("verification failed", logging.Path(i.path), logging.Error(err))
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return NewError("verify").Path(i.path).Cause(err).Err()
	}

	i.logger.Info("index verified", logging.Path(i.path), logging.Records(live))
	return nil
}
