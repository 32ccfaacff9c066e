package main

import (
	"fmt"
	"strconv"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/dd0wney/cluso-bfi/pkg/keymap"
)

// records gives the subcommands one string-keyed view over both addressing
// modes
type records interface {
	Insert(pk string, values []string) error
	Lookup(values []string) ([]string, error)
	Get(pk string) ([]string, error)
	Delete(pk string) error
	Sync() (int, error)
	Stat() (bfi.Stat, error)
	Verify() error
	Close() error
}

// open opens file and picks the view matching the addressing in its header
func (e *env) open(file string, readOnly bool) (records, error) {
	opts, err := e.cfg.Options(e.logger, e.metrics)
	if err != nil {
		return nil, err
	}
	if readOnly {
		opts.ReadOnly = true
		opts.Create = false
	}

	index, err := bfi.Open(file, opts)
	if err != nil {
		return nil, err
	}
	if st, err := index.Stat(); err == nil {
		e.index.Publish(st)
	}
	if index.Addressing() == bfi.KeyAddressed {
		return keyed{index}, nil
	}
	m, err := keymap.Wrap(index, e.logger)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	return mapped{m}, nil
}

// keyed uses numeric primary keys stored inline in the slots
type keyed struct {
	*bfi.Index
}

func parseKey(pk string) (bfi.ID, error) {
	k, err := strconv.ParseUint(pk, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key-addressed files need numeric keys, got %q", pk)
	}
	return bfi.ID(k), nil
}

func (k keyed) Insert(pk string, values []string) error {
	id, err := parseKey(pk)
	if err != nil {
		return err
	}
	return k.Index.Insert(id, values)
}

func (k keyed) Lookup(values []string) ([]string, error) {
	ids, err := k.Index.Lookup(values)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(uint64(id), 10)
	}
	return out, nil
}

func (k keyed) Get(pk string) ([]string, error) {
	id, err := parseKey(pk)
	if err != nil {
		return nil, err
	}
	return k.Index.Get(id)
}

func (k keyed) Delete(pk string) error {
	id, err := parseKey(pk)
	if err != nil {
		return err
	}
	return k.Index.Delete(id)
}

// mapped keeps string keys in the key table next to a slot-addressed file
type mapped struct {
	*keymap.Mapped
}

func (m mapped) Delete(string) error {
	return fmt.Errorf("%w: delete needs a key-addressed file", bfi.ErrWrongAddressing)
}

func (m mapped) Verify() error {
	return m.Index().Verify()
}
