package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/logging"
)

func (e *env) cmdIndex(args []string) (err error) {
	if len(args) == 0 || len(args) == 2 {
		return usageError("index <file> [<pk> <value>...]")
	}
	r, err := e.open(args[0], false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	if len(args) > 2 {
		return r.Insert(args[1], args[2:])
	}

	timer := logging.StartTimer(e.logger, "stdin indexed", logging.Path(args[0]))
	scanner := bufio.NewScanner(e.stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line, indexed := 0, 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return fmt.Errorf("line %d: need a key and at least one value", line)
		}
		if err := r.Insert(fields[0], fields[1:]); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		indexed++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	n, err := r.Sync()
	if err != nil {
		return err
	}
	if st, err := r.Stat(); err == nil {
		e.index.Publish(st)
	}
	timer.EndInfo(logging.Count(indexed), logging.Int("records", n))
	fmt.Fprintf(e.stdout, "indexed %d records (%d total)\n", indexed, n)
	return nil
}

func (e *env) cmdLookup(args []string) error {
	if len(args) < 2 {
		return usageError("lookup <file> <value>...")
	}
	r, err := e.open(args[0], true)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	keys, err := r.Lookup(args[1:])
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(e.stdout, k)
	}
	e.logger.Debug("lookup finished", logging.Count(len(keys)), logging.Latency(time.Since(start)))
	return nil
}

func (e *env) cmdGet(args []string) error {
	if len(args) != 2 {
		return usageError("get <file> <pk>")
	}
	r, err := e.open(args[0], true)
	if err != nil {
		return err
	}
	defer r.Close()

	values, err := r.Get(args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, strings.Join(values, " "))
	return nil
}

func (e *env) cmdStat(args []string) error {
	if len(args) != 1 {
		return usageError("stat <file>")
	}
	r, err := e.open(args[0], true)
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := r.Stat()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "path\t%s\n", st.Path)
	fmt.Fprintf(w, "file id\t%s\n", st.FileID)
	fmt.Fprintf(w, "version\t%d (%s-addressed)\n", st.Version, st.Addressing)
	fmt.Fprintf(w, "records\t%d\n", st.Records)
	fmt.Fprintf(w, "capacity\t%d\n", st.Capacity)
	fmt.Fprintf(w, "free slots\t%d\n", st.FreeSlots)
	fmt.Fprintf(w, "pages\t%d\n", st.Pages)
	fmt.Fprintf(w, "records per page\t%d\n", st.RecordsPerPage)
	fmt.Fprintf(w, "page size\t%d\n", st.PageSize)
	fmt.Fprintf(w, "slot size\t%d\n", st.SlotSize)
	fmt.Fprintf(w, "signature\t%d bits, %d hashes\n", st.SignatureBits, st.Hashes)
	fmt.Fprintf(w, "file size\t%d\n", st.Size)
	return w.Flush()
}

func (e *env) cmdVerify(args []string) error {
	if len(args) != 1 {
		return usageError("verify <file>")
	}
	r, err := e.open(args[0], true)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Verify(); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "ok")
	return nil
}

func (e *env) cmdDelete(args []string) (err error) {
	if len(args) != 2 {
		return usageError("delete <file> <key>")
	}
	r, err := e.open(args[0], false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()
	return r.Delete(args[1])
}
