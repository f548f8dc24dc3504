// Package macrofile converts macros to and from the versioned JSON document
// stored on disk:
//
//	{"version": 1, "events": [{"t": 0.25, "kind": "move", "data": {"x": 10, "y": 20}}]}
//
// Decoding checks field presence explicitly, so a missing coordinate is an
// error rather than a silent zero.
package macrofile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

// FormatVersion is the document version written by Encode.
const FormatVersion = 1

var (
	// ErrInvalidDocument indicates the input is not a JSON object with an events array.
	ErrInvalidDocument = errors.New("invalid macro document")
	// ErrUnsupportedVersion indicates a document newer than this build understands.
	ErrUnsupportedVersion = errors.New("unsupported macro document version")
	// ErrMissingField indicates a required event field is absent.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField indicates a field is present but has the wrong type or value.
	ErrInvalidField = errors.New("invalid field")
	// ErrUnknownKind indicates an event kind outside the supported set.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrEmptyMacro is returned by Save when there is nothing to write.
	ErrEmptyMacro = errors.New("macro has no events")
)

// DecodeError pinpoints the event and field that failed to decode.
type DecodeError struct {
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("event %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type document struct {
	Version int             `json:"version"`
	Events  []eventDocument `json:"events"`
}

type eventDocument struct {
	T    float64 `json:"t"`
	Kind string  `json:"kind"`
	Data any     `json:"data"`
}

type pointData struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type clickData struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Button  string `json:"button"`
	Pressed bool   `json:"pressed"`
}

type scrollData struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	DX int `json:"dx"`
	DY int `json:"dy"`
}

type keyData struct {
	Key string `json:"key"`
}

// Encode renders the macro as an indented JSON document. Macros that Decode
// would reject fail here instead, and key symbols are written in canonical
// form.
func Encode(m macro.Macro) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	doc := document{
		Version: FormatVersion,
		Events:  make([]eventDocument, 0, len(m.Events)),
	}
	for i, ev := range m.Events {
		data, err := encodeData(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if math.IsNaN(ev.T) || math.IsInf(ev.T, 0) {
			return nil, fmt.Errorf("event %d: non-finite timestamp", i)
		}
		doc.Events = append(doc.Events, eventDocument{T: ev.T, Kind: string(ev.Kind()), Data: data})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal macro: %w", err)
	}
	return out, nil
}

// encodeData renders a payload, applying the same bounds and key
// normalization Decode enforces so every encoded document decodes back.
func encodeData(payload macro.Payload) (any, error) {
	switch p := payload.(type) {
	case macro.Move:
		if err := checkCoordinates(p.X, p.Y); err != nil {
			return nil, err
		}
		return pointData{X: p.X, Y: p.Y}, nil
	case macro.Click:
		if err := checkCoordinates(p.X, p.Y); err != nil {
			return nil, err
		}
		if _, err := macro.ParseButton(string(p.Button)); err != nil {
			return nil, err
		}
		return clickData{X: p.X, Y: p.Y, Button: string(p.Button), Pressed: p.Pressed}, nil
	case macro.Scroll:
		if err := checkCoordinates(p.X, p.Y, p.DX, p.DY); err != nil {
			return nil, err
		}
		return scrollData{X: p.X, Y: p.Y, DX: p.DX, DY: p.DY}, nil
	case macro.KeyPress:
		return encodeKey(p.Key)
	case macro.KeyRelease:
		return encodeKey(p.Key)
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
}

func encodeKey(k macro.KeySymbol) (any, error) {
	canonical, err := k.Canonical()
	if err != nil {
		return nil, err
	}
	return keyData{Key: canonical.String()}, nil
}

func checkCoordinates(values ...int) error {
	for _, v := range values {
		if v > math.MaxInt32 || v < -math.MaxInt32 {
			return fmt.Errorf("%d is not a coordinate", v)
		}
	}
	return nil
}

// Decode parses a macro document. The result is all-or-nothing: any invalid
// event fails the whole decode.
func Decode(data []byte) (macro.Macro, error) {
	if !gjson.ValidBytes(data) {
		return macro.Macro{}, fmt.Errorf("%w: malformed json", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return macro.Macro{}, fmt.Errorf("%w: top level must be an object", ErrInvalidDocument)
	}
	return decodeRoot(root)
}

// DecodeResult decodes a document already parsed by gjson, for callers that
// embed macro documents inside larger files.
func DecodeResult(root gjson.Result) (macro.Macro, error) {
	if !root.IsObject() {
		return macro.Macro{}, fmt.Errorf("%w: top level must be an object", ErrInvalidDocument)
	}
	return decodeRoot(root)
}

func decodeRoot(root gjson.Result) (macro.Macro, error) {
	version := root.Get("version")
	if version.Exists() {
		if version.Type != gjson.Number || version.Float() != math.Trunc(version.Float()) {
			return macro.Macro{}, fmt.Errorf("%w: version must be an integer", ErrInvalidDocument)
		}
		if v := version.Int(); v > FormatVersion || v < 1 {
			return macro.Macro{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
	}

	rawEvents := root.Get("events")
	if !rawEvents.Exists() {
		return macro.Macro{}, fmt.Errorf("%w: events array missing", ErrInvalidDocument)
	}
	if !rawEvents.IsArray() {
		return macro.Macro{}, fmt.Errorf("%w: events must be an array", ErrInvalidDocument)
	}

	items := rawEvents.Array()
	events := make([]macro.Event, 0, len(items))
	prev := 0.0
	for i, item := range items {
		ev, err := decodeEvent(i, item)
		if err != nil {
			return macro.Macro{}, err
		}
		if ev.T < prev {
			return macro.Macro{}, &DecodeError{Index: i, Field: "t", Err: macro.ErrNotMonotonic}
		}
		prev = ev.T
		events = append(events, ev)
	}
	return macro.New(events...), nil
}

func decodeEvent(index int, item gjson.Result) (macro.Event, error) {
	fail := func(field string, err error) (macro.Event, error) {
		return macro.Event{}, &DecodeError{Index: index, Field: field, Err: err}
	}
	if !item.IsObject() {
		return fail("event", ErrInvalidField)
	}

	t := item.Get("t")
	if !t.Exists() {
		return fail("t", ErrMissingField)
	}
	if t.Type != gjson.Number {
		return fail("t", ErrInvalidField)
	}
	ts := t.Float()
	if ts < 0 || math.IsInf(ts, 0) || math.IsNaN(ts) {
		return fail("t", fmt.Errorf("%w: must be a finite value >= 0", ErrInvalidField))
	}

	rawKind := item.Get("kind")
	if !rawKind.Exists() {
		return fail("kind", ErrMissingField)
	}
	if rawKind.Type != gjson.String {
		return fail("kind", ErrInvalidField)
	}
	kind, err := macro.ParseKind(rawKind.Str)
	if err != nil {
		return fail("kind", fmt.Errorf("%w: %q", ErrUnknownKind, rawKind.Str))
	}

	data := item.Get("data")
	if !data.Exists() {
		return fail("data", ErrMissingField)
	}
	if !data.IsObject() {
		return fail("data", ErrInvalidField)
	}

	fields := fieldReader{data: data}
	var payload macro.Payload
	switch kind {
	case macro.KindMove:
		payload = macro.Move{X: fields.requiredInt("x"), Y: fields.requiredInt("y")}
	case macro.KindClick:
		click := macro.Click{X: fields.requiredInt("x"), Y: fields.requiredInt("y")}
		click.Button = fields.button("button")
		click.Pressed = fields.requiredBool("pressed")
		payload = click
	case macro.KindScroll:
		payload = macro.Scroll{
			X:  fields.optionalInt("x"),
			Y:  fields.optionalInt("y"),
			DX: fields.optionalInt("dx"),
			DY: fields.optionalInt("dy"),
		}
	case macro.KindKeyPress:
		payload = macro.KeyPress{Key: fields.key("key")}
	case macro.KindKeyRelease:
		payload = macro.KeyRelease{Key: fields.key("key")}
	}
	if fields.err != nil {
		return fail("data."+fields.field, fields.err)
	}
	return macro.Event{T: ts, Data: payload}, nil
}

// fieldReader records the first failure so a payload can be read in one
// expression per field.
type fieldReader struct {
	data  gjson.Result
	field string
	err   error
}

func (r *fieldReader) setErr(field string, err error) {
	if r.err == nil {
		r.field = field
		r.err = err
	}
}

func (r *fieldReader) intValue(field string, required bool) int {
	v := r.data.Get(field)
	if !v.Exists() {
		if required {
			r.setErr(field, ErrMissingField)
		}
		return 0
	}
	if v.Type != gjson.Number {
		r.setErr(field, ErrInvalidField)
		return 0
	}
	f := v.Float()
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		r.setErr(field, fmt.Errorf("%w: %v is not a coordinate", ErrInvalidField, v.Raw))
		return 0
	}
	return int(f)
}

func (r *fieldReader) requiredInt(field string) int { return r.intValue(field, true) }

func (r *fieldReader) optionalInt(field string) int { return r.intValue(field, false) }

func (r *fieldReader) requiredBool(field string) bool {
	v := r.data.Get(field)
	if !v.Exists() {
		r.setErr(field, ErrMissingField)
		return false
	}
	if v.Type != gjson.True && v.Type != gjson.False {
		r.setErr(field, ErrInvalidField)
		return false
	}
	return v.Bool()
}

func (r *fieldReader) requiredString(field string) (string, bool) {
	v := r.data.Get(field)
	if !v.Exists() {
		r.setErr(field, ErrMissingField)
		return "", false
	}
	if v.Type != gjson.String {
		r.setErr(field, ErrInvalidField)
		return "", false
	}
	return v.Str, true
}

func (r *fieldReader) button(field string) macro.Button {
	s, ok := r.requiredString(field)
	if !ok {
		return ""
	}
	b, err := macro.ParseButton(s)
	if err != nil {
		r.setErr(field, fmt.Errorf("%w: %v", ErrInvalidField, err))
	}
	return b
}

func (r *fieldReader) key(field string) macro.KeySymbol {
	s, ok := r.requiredString(field)
	if !ok {
		return macro.KeySymbol{}
	}
	k, err := macro.ParseKeySymbol(s)
	if err != nil {
		r.setErr(field, fmt.Errorf("%w: %v", ErrInvalidField, err))
	}
	return k
}

// Save writes the macro to path atomically via a temporary file and rename.
func Save(path string, m macro.Macro) error {
	if m.IsEmpty() {
		return ErrEmptyMacro
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Load reads and decodes the macro stored at path.
func Load(path string) (macro.Macro, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return macro.Macro{}, fmt.Errorf("read macro file: %w", err)
	}
	m, err := Decode(data)
	if err != nil {
		return macro.Macro{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// WriteFileAtomic replaces path with data so readers never observe a
// partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
