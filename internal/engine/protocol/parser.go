package protocol

import (
	"Go2TraceSpectra/internal/model"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned for any line that does not fully match the trace schema.
var ErrMalformedLine = errors.New("malformed trace line")

// FieldError reports a matched line whose numeric field failed conversion.
// It is treated as a malformed line: errors.Is(err, ErrMalformedLine) holds.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrMalformedLine }

// linePattern captures the 13 fields of a transfer line, e.g.
//
//	node01:card3:1735689600123: Group:0, from rank 1 to rank 2, channel_id:4, func:4,FuncTimes:7, 10.0.0.1->10.0.0.2 send 1048576 Bytes used 81920 nsec
var linePattern = regexp.MustCompile(
	`^(\S+):(\S+):(\d+): Group:(\d+), from rank (\d+) to rank (\d+), channel_id:(\d+), func:(\d+),FuncTimes:(\d+), ` +
		`(\d+\.\d+\.\d+\.\d+)->(\d+\.\d+\.\d+\.\d+) send (\d+) Bytes used (\d+) nsec`)

const numFields = 13

// ParseLine matches one raw line against the trace schema.
// Surrounding whitespace is ignored; trailing text after "nsec" is tolerated.
func ParseLine(line string) (*model.EventRecord, error) {
	m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, ErrMalformedLine
	}
	if len(m) != numFields+1 {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedLine, numFields, len(m)-1)
	}

	rec := &model.EventRecord{
		Node:      m[1],
		Card:      m[2],
		Timestamp: m[3],
		SrcIP:     m[10],
		DstIP:     m[11],
	}

	// Keys keep the digits exactly as written; "01" and "1" are distinct groups.
	rec.Group = m[4]
	rec.SrcRank = m[5]
	rec.DstRank = m[6]
	rec.Channel = m[7]
	rec.FuncTimes = m[9]

	// Ranks become flow-graph vertices, so they must fit an int.
	for _, f := range []struct{ name, raw string }{
		{"from_rank", m[5]},
		{"to_rank", m[6]},
	} {
		if _, err := strconv.Atoi(f.raw); err != nil {
			return nil, &FieldError{Field: f.name, Value: f.raw, Err: err}
		}
	}

	code, err := strconv.Atoi(m[8])
	if err != nil {
		return nil, &FieldError{Field: "func", Value: m[8], Err: err}
	}
	rec.Func = model.FuncType(code)

	if rec.Bytes, err = strconv.ParseUint(m[12], 10, 64); err != nil {
		return nil, &FieldError{Field: "bytes", Value: m[12], Err: err}
	}
	if rec.TimeNs, err = strconv.ParseUint(m[13], 10, 64); err != nil {
		return nil, &FieldError{Field: "nsec", Value: m[13], Err: err}
	}

	return rec, nil
}

// Format renders a record back into the trace line format.
func Format(r *model.EventRecord) string {
	return fmt.Sprintf("%s:%s:%s: Group:%s, from rank %s to rank %s, channel_id:%s, func:%d,FuncTimes:%s, %s->%s send %d Bytes used %d nsec",
		r.Node, r.Card, r.Timestamp, r.Group, r.SrcRank, r.DstRank, r.Channel, int(r.Func), r.FuncTimes,
		r.SrcIP, r.DstIP, r.Bytes, r.TimeNs)
}
