package snapshot

import (
	"fmt"
	"io"

	"github.com/Bitconch/authz/codec"
)

// section is the on-stream envelope: a name and its pre-encoded rows.
type section struct {
	Name string             `cbor:"name"`
	Rows []codec.RawMessage `cbor:"rows"`
}

// CBORWriter frames sections as deterministic CBOR, one envelope per
// section.
type CBORWriter struct {
	enc *codec.Encoder
}

// NewCBORWriter creates a snapshot writer on w.
func NewCBORWriter(w io.Writer) *CBORWriter {
	return &CBORWriter{enc: codec.NewEncoder(w)}
}

// WriteSection implements Writer.
func (w *CBORWriter) WriteSection(name string, fn func(add func(row any) error) error) error {
	sec := section{Name: name}
	add := func(row any) error {
		data, err := codec.Marshal(row)
		if err != nil {
			return fmt.Errorf("snapshot: encode %s row: %w", name, err)
		}
		sec.Rows = append(sec.Rows, data)
		return nil
	}
	if err := fn(add); err != nil {
		return err
	}
	if err := w.enc.Encode(sec); err != nil {
		return fmt.Errorf("snapshot: write section %s: %w", name, err)
	}
	return nil
}

// CBORReader replays sections written by CBORWriter.
type CBORReader struct {
	dec *codec.Decoder
}

// NewCBORReader creates a snapshot reader on r.
func NewCBORReader(r io.Reader) *CBORReader {
	return &CBORReader{dec: codec.NewDecoder(r)}
}

// ReadSection implements Reader.
func (r *CBORReader) ReadSection(name string, fn func(next func(row any) (bool, error)) error) error {
	var sec section
	if err := r.dec.Decode(&sec); err != nil {
		return fmt.Errorf("snapshot: read section %s: %w", name, err)
	}
	if sec.Name != name {
		return fmt.Errorf("snapshot: expected section %s, found %s", name, sec.Name)
	}

	i := 0
	next := func(row any) (bool, error) {
		if i >= len(sec.Rows) {
			return false, nil
		}
		if err := codec.Unmarshal(sec.Rows[i], row); err != nil {
			return false, fmt.Errorf("snapshot: decode %s row %d: %w", name, i, err)
		}
		i++
		return true, nil
	}
	return fn(next)
}
