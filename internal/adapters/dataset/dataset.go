// Package dataset writes evaluation records as JSON Lines, gzip-compressed
// when the path ends in .gz.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/okian/diamond/internal/domain/evaluator"
)

// Sentinel kinds for dataset errors.
var (
	ErrClosed = errors.New("dataset writer closed")
)

// Writer appends records to a file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	zw     *gzip.Writer
	buf    *bufio.Writer
	enc    *json.Encoder
	closed bool
	count  int64
}

// Create opens path for writing. With appendMode the file is extended
// instead of truncated, which a resumed run uses to keep earlier layers.
func Create(path string, appendMode bool) (*Writer, error) {
	return create(path, appendMode, compressed(path))
}

func compressed(path string) bool { return strings.HasSuffix(path, ".gz") }

func create(path string, appendMode, gz bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}

	w := &Writer{file: f}
	var out io.Writer = f
	if gz {
		// each run appends its own gzip member
		w.zw = gzip.NewWriter(f)
		out = w.zw
	}
	w.buf = bufio.NewWriterSize(out, 256*1024)
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// Write encodes one record.
func (w *Writer) Write(_ context.Context, r *evaluator.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("encode %s: %w", r.PlayID, err)
	}
	w.count++
	return nil
}

// Flush pushes buffered records to the file.
func (w *Writer) Flush(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.zw != nil {
		return w.zw.Flush()
	}
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.flushLocked()
	if w.zw != nil {
		err = errors.Join(err, w.zw.Close())
	}
	return errors.Join(err, w.file.Sync(), w.file.Close())
}

// ReadAll decodes every record from r. Gzip input is detected by its magic
// bytes, including files with several gzip members.
func ReadAll(r io.Reader) ([]evaluator.Record, error) {
	br := bufio.NewReader(r)
	var in io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		in = zr
	}

	var out []evaluator.Record
	dec := json.NewDecoder(in)
	for {
		var rec evaluator.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// Trim rewrites the dataset at path keeping only records of layers up to
// maxLayer. A resumed run calls it so that records of a layer that was
// emitted but never checkpointed are not written twice. A torn tail, a
// truncated line or an unclosed gzip member, is dropped; any other decode
// error fails and leaves the file untouched. A missing file is not an error.
func Trim(path string, maxLayer int) (kept int, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open dataset %s: %w", path, err)
	}
	recs, err := ReadAll(f)
	_ = f.Close()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("read dataset %s: %w", path, err)
	}

	tmp := path + ".trim"
	w, err := create(tmp, false, compressed(path))
	if err != nil {
		return 0, err
	}
	for i := range recs {
		if recs[i].Layer > maxLayer {
			break
		}
		if err := w.Write(context.Background(), &recs[i]); err != nil {
			_ = w.Close()
			return 0, err
		}
		kept++
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace dataset %s: %w", path, err)
	}
	return kept, nil
}
