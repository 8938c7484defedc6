package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hyperjump/kensaku/internal/apperr"
)

// FormatVersion is the on-disk version of segment files and the manifest.
const FormatVersion = 1

const (
	headerSize = 8 // magic u32 + version u32
	footerSize = 8 // xxhash64 of everything before it

	magicTermDict uint32 = 0x4b544449 // KTDI
	magicPostings uint32 = 0x4b505354 // KPST
	magicStored   uint32 = 0x4b53544f // KSTO
	magicNorms    uint32 = 0x4b4e524d // KNRM
)

// Segment file extensions.
const (
	extTermDict = ".tdict"
	extPostings = ".post"
	extStored   = ".stor"
	extNorms    = ".norm"
)

var segmentExts = []string{extNorms, extStored, extTermDict, extPostings}

const (
	manifestName    = "manifest"
	manifestTmpName = "manifest.new"
	lockName        = "write.lock"
	segmentPrefix   = "seg-"
)

func segmentName(n uint64) string { return segmentPrefix + strconv.FormatUint(n, 10) }

// parseSegmentFile splits "seg-12.post" into (12, ".post").
func parseSegmentFile(file string) (uint64, string, bool) {
	if !strings.HasPrefix(file, segmentPrefix) {
		return 0, "", false
	}
	ext := filepath.Ext(file)
	n, err := strconv.ParseUint(strings.TrimSuffix(file[len(segmentPrefix):], ext), 10, 64)
	if err != nil {
		return 0, "", false
	}
	for _, e := range segmentExts {
		if e == ext {
			return n, ext, true
		}
	}
	return 0, "", false
}

// parseSegmentName returns the number of a segment name such as "seg-3".
func parseSegmentName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[len(segmentPrefix):], 10, 64)
	return n, err == nil
}

// fileWriter buffers writes, tracks the offset and hashes everything written
// so the checksum footer can be appended on finish.
type fileWriter struct {
	f   File
	bw  *bufio.Writer
	h   *xxhash.Digest
	n   int64
	buf [binary.MaxVarintLen64]byte
}

func newFileWriter(f File, magic uint32) (*fileWriter, error) {
	w := &fileWriter{f: f, bw: bufio.NewWriterSize(f, 64<<10), h: xxhash.New()}
	if err := w.u32(magic); err != nil {
		return nil, err
	}
	if err := w.u32(FormatVersion); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	_, _ = w.h.Write(p[:n])
	w.n += int64(n)
	return n, err
}

func (w *fileWriter) u32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	_, err := w.Write(w.buf[:4])
	return err
}

func (w *fileWriter) u64(v uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	_, err := w.Write(w.buf[:8])
	return err
}

func (w *fileWriter) uvarint(v uint64) error {
	n := binary.PutUvarint(w.buf[:], v)
	_, err := w.Write(w.buf[:n])
	return err
}

func (w *fileWriter) bytes(p []byte) error {
	if err := w.uvarint(uint64(len(p))); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// finish appends the checksum, flushes and fsyncs. The file is closed either way.
func (w *fileWriter) finish() error {
	var sum [footerSize]byte
	binary.LittleEndian.PutUint64(sum[:], w.h.Sum64())
	if _, err := w.bw.Write(sum[:]); err != nil {
		w.f.Close()
		return err
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// verifyFile checks the header and checksum of a mapped segment file and
// returns the body between them.
func verifyFile(name string, data []byte, magic uint32) ([]byte, error) {
	const op = "verify segment file"
	if len(data) < headerSize+footerSize {
		return nil, apperr.Corruptf(op, "%s: truncated (%d bytes)", name, len(data))
	}
	if got := binary.LittleEndian.Uint32(data); got != magic {
		return nil, apperr.Corruptf(op, "%s: bad magic %#x", name, got)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != FormatVersion {
		return nil, apperr.Corruptf(op, "%s: unsupported format version %d", name, v)
	}
	end := len(data) - footerSize
	want := binary.LittleEndian.Uint64(data[end:])
	if got := xxhash.Sum64(data[:end]); got != want {
		return nil, apperr.Corruptf(op, "%s: checksum mismatch", name)
	}
	return data[:end], nil
}

// decoder reads little-endian and varint values from a byte slice, recording
// the first out-of-bounds read as an error.
type decoder struct {
	name string
	b    []byte
	off  int
	err  error
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = apperr.Corruptf("decode", "%s: bad %s at offset %d", d.name, what, d.off)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b[d.off:])
	if n <= 0 {
		d.fail("varint")
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) u32() uint32 {
	if d.err != nil || d.off+4 > len(d.b) {
		d.fail("u32")
		return 0
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil || d.off+8 > len(d.b) {
		d.fail("u64")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v
}

func (d *decoder) next(n int) []byte {
	if d.err != nil || n < 0 || d.off+n > len(d.b) {
		d.fail(fmt.Sprintf("%d-byte slice", n))
		return nil
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if n > uint64(len(d.b)) {
		d.fail("length")
		return nil
	}
	return d.next(int(n))
}
