package model

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/ngram"
)

// Persisted form, one record per line:
//
//	@ sabir 2
//	> <ngram size> <table size> <languages> <hash name>
//	<label>                           one per language, sorted
//	<language index> <probability>    one per slot, probability as a hex float
//
// Hex floats round-trip bit for bit, so a reloaded model scores documents
// exactly like the one that was saved.
const (
	// FormatVersion is the version written in the magic line.
	FormatVersion = 2

	magicLine = "@ sabir 2"

	// FileExt is the conventional extension of model files.
	FileExt = ".sb"
)

// maxLineLen bounds a single line of a model file.
const maxLineLen = 256

// Save writes m to w. It only fails when w does.
func Save(w io.Writer, m *Model) error {
	bw := bufio.NewWriterSize(w, 64*1024)

	fmt.Fprintln(bw, magicLine)
	fmt.Fprintf(bw, "> %d %d %d %s\n", m.ngramSize, len(m.slots), len(m.langs), ngram.HashName)
	for _, l := range m.langs {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}

	buf := make([]byte, 0, 48)
	for _, s := range m.slots {
		buf = strconv.AppendInt(buf[:0], int64(s.Lang), 10)
		buf = append(buf, ' ')
		buf = AppendHexFloat(buf, s.Prob)
		buf = append(buf, '\n')
		bw.Write(buf)
	}

	return bw.Flush()
}

// AppendHexFloat appends f as a hexadecimal float with the exponent written
// without leading zeros (0x1p-1, not 0x1p-01), matching C's %a.
func AppendHexFloat(dst []byte, f float64) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, 'x', -1, 64)
	p := bytes.LastIndexByte(dst[start:], 'p')
	if p < 0 {
		return dst
	}
	digits := start + p + 2
	end := digits
	for end < len(dst)-1 && dst[end] == '0' {
		end++
	}
	return append(dst[:digits], dst[end:]...)
}

// SaveFile writes m to path through a temporary file in the same directory, so
// readers never observe a partially written model.
func SaveFile(path string, m *Model) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return sberrors.Input("model.SaveFile", "cannot create temporary file", err)
	}
	tmpName := tmp.Name()

	if err := Save(tmp, m); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return sberrors.Input("model.SaveFile", "cannot write model", err).WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return sberrors.Input("model.SaveFile", "cannot write model", err).WithContext("path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return sberrors.Input("model.SaveFile", "cannot replace model", err).WithContext("path", path)
	}
	return nil
}

// LoadFile reads a model from path. A missing or unreadable file is a KindInput
// error; a malformed one is KindModel.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sberrors.Input("model.LoadFile", "cannot open model", err).WithContext("path", path)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, sberrors.Wrap(sberrors.KindModel, "model.LoadFile", path, err)
	}
	return m, nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	d := &decoder{sc: bufio.NewScanner(r)}
	d.sc.Buffer(make([]byte, 0, maxLineLen), maxLineLen)
	return d.decode()
}

type decoder struct {
	sc   *bufio.Scanner
	line int
}

func (d *decoder) fail(format string, args ...any) error {
	return sberrors.Modelf("model.Load", format, args...).WithContext("line", strconv.Itoa(d.line))
}

func (d *decoder) next(what string) (string, error) {
	if d.sc.Scan() {
		d.line++
		return d.sc.Text(), nil
	}
	if err := d.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			d.line++
			return "", d.fail("line too long")
		}
		return "", sberrors.Model("model.Load", "read failed", err)
	}
	return "", d.fail("truncated model: missing %s", what)
}

func (d *decoder) decode() (*Model, error) {
	magic, err := d.next("magic line")
	if err != nil {
		return nil, err
	}
	if magic != magicLine {
		return nil, d.fail("not a model file")
	}

	ngramSize, tableSize, numLangs, err := d.header()
	if err != nil {
		return nil, err
	}

	labels := make([]string, numLangs)
	for i := range labels {
		if labels[i], err = d.next("language label"); err != nil {
			return nil, err
		}
	}

	slots := make([]Slot, tableSize)
	for i := range slots {
		if slots[i], err = d.slot(numLangs); err != nil {
			return nil, err
		}
	}

	if d.sc.Scan() {
		d.line++
		return nil, d.fail("trailing data after %d slots", tableSize)
	}
	if err := d.sc.Err(); err != nil {
		return nil, sberrors.Model("model.Load", "read failed", err)
	}

	return New(ngramSize, labels, slots)
}

func (d *decoder) header() (ngramSize, tableSize, numLangs int, err error) {
	line, err := d.next("header")
	if err != nil {
		return 0, 0, 0, err
	}

	fields := strings.Fields(line)
	if len(fields) != 5 || fields[0] != ">" {
		return 0, 0, 0, d.fail("malformed header %q", line)
	}

	nums := make([]int, 3)
	for i, f := range fields[1:4] {
		n, convErr := strconv.Atoi(f)
		if convErr != nil || n < 1 {
			return 0, 0, 0, d.fail("malformed header field %q", f)
		}
		nums[i] = n
	}
	if fields[4] != ngram.HashName {
		return 0, 0, 0, d.fail("unsupported hash %q", fields[4])
	}

	ngramSize, tableSize, numLangs = nums[0], nums[1], nums[2]
	if ngramSize > ngram.MaxSize {
		return 0, 0, 0, d.fail("n-gram size %d exceeds %d", ngramSize, ngram.MaxSize)
	}
	if !ngram.IsPowerOfTwo(tableSize) || tableSize > MaxTableSize {
		return 0, 0, 0, d.fail("table size %d is not a power of two in [1, %d]", tableSize, MaxTableSize)
	}
	if numLangs > MaxLanguages {
		return 0, 0, 0, d.fail("%d languages exceeds the limit of %d", numLangs, MaxLanguages)
	}
	return ngramSize, tableSize, numLangs, nil
}

func (d *decoder) slot(numLangs int) (Slot, error) {
	line, err := d.next("slot")
	if err != nil {
		return Slot{}, err
	}

	idx, probText, ok := strings.Cut(line, " ")
	if !ok {
		return Slot{}, d.fail("malformed slot %q", line)
	}

	lang, err := strconv.Atoi(idx)
	if err != nil || lang < 0 || lang >= numLangs {
		return Slot{}, d.fail("language index %q out of range", idx)
	}

	prob, err := strconv.ParseFloat(probText, 64)
	if err != nil || math.IsNaN(prob) || prob <= 0 || prob > 1 {
		return Slot{}, d.fail("unparsable probability %q", probText)
	}

	return Slot{Lang: lang, Prob: prob}, nil
}
