// Package shader_table lays out the shader records a ray dispatch reads: a shader identifier
// followed by the record's local root arguments, padded to a fixed stride per table.
package shader_table

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Entry is one shader record before layout.
type Entry struct {
	// Identifier is the shader identifier of the export or hit group the record invokes.
	Identifier []byte

	// LocalArgs are the local root arguments, laid out by the local root signature.
	LocalArgs []byte
}

// Size returns the unpadded record size.
func (e Entry) Size() int {
	return len(e.Identifier) + len(e.LocalArgs)
}

// Table is a laid-out shader table. Every record occupies exactly Stride bytes.
type Table struct {
	data   []byte
	stride uint32
	count  uint32
}

// BuildShaderTable lays out entries with a single stride: the largest record rounded up to
// alignment. Records shorter than the stride are zero padded.
//
// Parameters:
//   - entries: the records in table order
//   - alignment: the record alignment, a power of two
//
// Returns:
//   - *Table: the table
//   - error: a ValidationError for an empty entry list, a bad alignment or identifiers of
//     different lengths
func BuildShaderTable(entries []Entry, alignment uint32) (*Table, error) {
	if len(entries) == 0 {
		return nil, common.NewValidationError("shader_table", "no records")
	}
	if !common.IsPowerOfTwo(uint64(alignment)) {
		return nil, common.NewValidationError("shader_table", "record alignment %d is not a power of two", alignment)
	}

	idLen := len(entries[0].Identifier)
	if idLen == 0 {
		return nil, common.NewValidationError("shader_table", "record 0 has no identifier")
	}
	largest := 0
	for i, e := range entries {
		if len(e.Identifier) != idLen {
			return nil, common.NewValidationError("shader_table", "record %d identifier is %d bytes, record 0 is %d", i, len(e.Identifier), idLen)
		}
		largest = max(largest, e.Size())
	}

	stride := uint32(common.AlignUp(uint64(largest), uint64(alignment)))
	t := &Table{
		data:   make([]byte, int(stride)*len(entries)),
		stride: stride,
		count:  uint32(len(entries)),
	}
	for i, e := range entries {
		record := t.data[i*int(stride):]
		n := copy(record, e.Identifier)
		copy(record[n:], e.LocalArgs)
	}
	return t, nil
}

// Bytes returns the table contents.
func (t *Table) Bytes() []byte {
	return t.data
}

// Stride returns the record stride in bytes.
func (t *Table) Stride() uint32 {
	return t.stride
}

// Count returns the number of records.
func (t *Table) Count() uint32 {
	return t.count
}

// Size returns the table size in bytes.
func (t *Table) Size() uint64 {
	return uint64(len(t.data))
}

// Record returns the padded bytes of record i.
func (t *Table) Record(i int) []byte {
	s := int(t.stride)
	return t.data[i*s : (i+1)*s]
}
