// Package eventsource reads event lists in the analysis input shape from
// JSON documents: either one JSON array of event objects or JSONL with one
// event object per line.
package eventsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/logflow/procinsight/internal/model"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

// Format of an event document.
type Format int

const (
	FormatUnknown Format = iota
	FormatArray
	FormatJSONL
)

func (f Format) String() string {
	switch f {
	case FormatArray:
		return "json"
	case FormatJSONL:
		return "jsonl"
	default:
		return "unknown"
	}
}

// structuralFields lists the keys accepted for each structural event field,
// in priority order: the underscore spelling first, then the XES key. When
// a record carries both, the first non-null one wins.
var structuralFields = []struct {
	keys []string
	set  func(*model.Event, string)
}{
	{[]string{"case_id", "case:concept:name"}, func(e *model.Event, s string) { e.CaseID = s }},
	{[]string{"concept_name", "concept:name"}, func(e *model.Event, s string) { e.Activity = s }},
	{[]string{"timestamp", "time:timestamp"}, func(e *model.Event, s string) { e.Timestamp = s }},
	{[]string{"resource", "org:resource"}, func(e *model.Event, s string) { e.Resource = s }},
	{[]string{"lifecycle_transition", "lifecycle:transition"}, func(e *model.Event, s string) { e.Lifecycle = s }},
}

var structuralKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, f := range structuralFields {
		for _, k := range f.keys {
			m[k] = true
		}
	}
	return m
}()

const (
	bufferSize    = 64 * 1024
	maxLineSize   = 16 * 1024 * 1024
	checkInterval = 1024
)

type options struct {
	progress io.Writer
}

// Option configures a read.
type Option func(*options)

// WithProgress copies every byte read from the input to w. A
// progressbar.ProgressBar is a valid w.
func WithProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

// Load reads the event document at path.
func Load(ctx context.Context, path string, opts ...Option) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.FileNotFound(path)
		}
		return nil, perrors.Wrap(err, perrors.CodeFileNotFound, "open input").WithContext("path", path)
	}
	defer f.Close()

	return Read(ctx, f, path, opts...)
}

// Read decodes an event document from r. name labels errors.
func Read(ctx context.Context, r io.Reader, name string, opts ...Option) ([]model.Event, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.progress != nil {
		r = io.TeeReader(r, o.progress)
	}

	br := bufio.NewReaderSize(r, bufferSize)
	format, err := detect(br)
	if err != nil {
		return nil, perrors.InvalidFormat(name, err)
	}

	switch format {
	case FormatArray:
		return readArray(ctx, br, name)
	case FormatJSONL:
		return readJSONL(ctx, br, name)
	default:
		// Empty or whitespace-only input holds no events.
		return []model.Event{}, nil
	}
}

// detect peeks at the first non-space byte without consuming it.
func detect(br *bufio.Reader) (Format, error) {
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return FormatUnknown, nil
		}
		if err != nil {
			return FormatUnknown, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF:
			// UTF-8 BOM
			if rest, err := br.Peek(2); err == nil && rest[0] == 0xBB && rest[1] == 0xBF {
				br.Discard(2)
				continue
			}
		}
		br.UnreadByte()
		switch b {
		case '[':
			return FormatArray, nil
		case '{':
			return FormatJSONL, nil
		default:
			return FormatUnknown, fmt.Errorf("unexpected leading byte %q", b)
		}
	}
}

func readArray(ctx context.Context, r io.Reader, name string) ([]model.Event, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, perrors.InvalidFormat(name, err)
	}

	events := make([]model.Event, 0, 1024)
	for dec.More() {
		if len(events)%checkInterval == 0 && ctx.Err() != nil {
			return nil, perrors.Wrap(ctx.Err(), perrors.CodeContextCanceled, "read canceled")
		}
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, perrors.InvalidFormat(name, err).WithContext("index", len(events))
		}
		events = append(events, FromRecord(rec))
	}

	if _, err := dec.Token(); err != nil {
		return nil, perrors.InvalidFormat(name, err)
	}
	return events, nil
}

func readJSONL(ctx context.Context, r io.Reader, name string) ([]model.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, bufferSize), maxLineSize)

	events := make([]model.Event, 0, 1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%checkInterval == 0 && ctx.Err() != nil {
			return nil, perrors.Wrap(ctx.Err(), perrors.CodeContextCanceled, "read canceled")
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, perrors.InvalidFormat(name, err).WithContext("line", line)
		}
		events = append(events, FromRecord(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.InvalidFormat(name, err).WithContext("line", line+1)
	}
	return events, nil
}

// FromRecord converts one decoded JSON object into an Event. Structural
// keys fill the event fields; every other key lands in Attributes.
func FromRecord(rec map[string]any) model.Event {
	var e model.Event
	for _, f := range structuralFields {
		for _, k := range f.keys {
			if v, ok := rec[k]; ok && v != nil {
				f.set(&e, stringify(v))
				break
			}
		}
	}

	for k, v := range rec {
		if structuralKeys[k] {
			continue
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]any)
		}
		e.Attributes[k] = normalize(v)
	}
	return e
}

// stringify renders a structural value. Numbers keep their literal text so
// an epoch-millisecond timestamp survives unchanged.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// normalize turns json.Number into int64 or float64, recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, vv := range x {
			x[k] = normalize(vv)
		}
		return x
	case []any:
		for i, vv := range x {
			x[i] = normalize(vv)
		}
		return x
	default:
		return v
	}
}
