// Package conformance checks that independent implementations of the
// classifier agree bit for bit.
//
// Implementations exchange results in a line-oriented trace format:
//
//	<hex n-gram> <label> <decimal hash> <hex float probability>
//	...
//	<guessed label>
//
// one line per n-gram in document order followed by a line holding only the
// guessed label. This is what `sabir detect -v` prints.
package conformance

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adalundhe/sabir/core/classify"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
)

// maxTraceLine bounds one decoded line; n-grams are at most eight bytes.
const maxTraceLine = 4096

// AppendEntry appends the trace line of e, without a newline, to dst.
func AppendEntry(dst []byte, e classify.TraceEntry) []byte {
	dst = hex.AppendEncode(dst, e.NGram)
	dst = append(dst, ' ')
	dst = append(dst, e.Language...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(e.Hash), 10)
	dst = append(dst, ' ')
	return model.AppendHexFloat(dst, e.Probability)
}

// Lines renders r as trace lines, without newlines. The last line is the label.
func Lines(r classify.Result) []string {
	lines := make([]string, 0, len(r.Trace)+1)
	var buf []byte
	for _, e := range r.Trace {
		buf = AppendEntry(buf[:0], e)
		lines = append(lines, string(buf))
	}
	return append(lines, r.Language)
}

// EncodeTrace writes r in trace format. It fails only if w does.
func EncodeTrace(w io.Writer, r classify.Result) error {
	bw := bufio.NewWriter(w)
	var buf []byte
	for _, e := range r.Trace {
		buf = AppendEntry(buf[:0], e)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString(r.Language + "\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// DecodeTrace parses trace format. Anything other than well-formed entry lines
// followed by exactly one label line is a KindInput error. The decoded result
// carries no scores.
func DecodeTrace(r io.Reader) (classify.Result, error) {
	const op = "conformance.DecodeTrace"

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxTraceLine)

	res := classify.Result{Trace: classify.Trace{}}
	line := 0
	done := false

	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if done {
			return classify.Result{}, lineErr(op, line, "data after final label")
		}

		fields := strings.Fields(text)
		switch len(fields) {
		case 1:
			res.Language = fields[0]
			done = true
		case 4:
			e, err := parseEntry(fields)
			if err != nil {
				return classify.Result{}, sberrors.Input(op, "malformed trace entry", err).
					WithContext("line", strconv.Itoa(line))
			}
			res.Trace = append(res.Trace, e)
		default:
			return classify.Result{}, lineErr(op, line, fmt.Sprintf("expected 1 or 4 fields, got %d", len(fields)))
		}
	}
	if err := sc.Err(); err != nil {
		return classify.Result{}, sberrors.Input(op, "cannot read trace", err)
	}
	if !done {
		return classify.Result{}, sberrors.Input(op, "trace has no final label", nil)
	}
	return res, nil
}

func lineErr(op string, line int, msg string) error {
	return sberrors.Input(op, msg, nil).WithContext("line", strconv.Itoa(line))
}

func parseEntry(fields []string) (classify.TraceEntry, error) {
	gram, err := hex.DecodeString(fields[0])
	if err != nil {
		return classify.TraceEntry{}, fmt.Errorf("n-gram: %w", err)
	}
	hash, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return classify.TraceEntry{}, fmt.Errorf("hash: %w", err)
	}
	prob, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return classify.TraceEntry{}, fmt.Errorf("probability: %w", err)
	}
	return classify.TraceEntry{
		NGram:       gram,
		Language:    fields[1],
		Hash:        uint32(hash),
		Probability: prob,
	}, nil
}
