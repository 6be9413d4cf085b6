package core

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// Usage hints how often a buffer's contents change.
type Usage int

const (
	// UsageStatic buffers are uploaded again only when their version changes.
	UsageStatic Usage = iota
	// UsageDynamic buffers are uploaded on every update regardless of version.
	UsageDynamic
)

// String returns the usage name.
func (u Usage) String() string {
	switch u {
	case UsageStatic:
		return "Static"
	case UsageDynamic:
		return "Dynamic"
	default:
		return "Unknown"
	}
}

// Buffer is CPU-side data uploaded to the GPU as a single buffer.
// Interleaved attributes share one Buffer.
type Buffer struct {
	id uint64

	// Data holds the raw little-endian bytes.
	Data []byte

	// Stride is the size in bytes of one element.
	Stride uint32

	// Usage selects the re-upload policy.
	Usage Usage

	// Version is bumped by NeedsUpdate and SetData.
	Version uint64

	// Label is an optional debug label.
	Label string
}

// NewBuffer creates a buffer over data with the given element stride.
func NewBuffer(data []byte, stride uint32) *Buffer {
	return &Buffer{id: NextID(), Data: data, Stride: stride}
}

// ID returns the buffer id.
func (b *Buffer) ID() uint64 { return b.id }

// NeedsUpdate marks the contents dirty.
func (b *Buffer) NeedsUpdate() { b.Version++ }

// SetData replaces the contents and marks them dirty.
func (b *Buffer) SetData(data []byte) {
	b.Data = data
	b.Version++
}

// Count returns the number of elements.
func (b *Buffer) Count() int {
	if b.Stride == 0 {
		return 0
	}
	return len(b.Data) / int(b.Stride)
}

// Attribute describes how one named shader input reads a Buffer.
type Attribute struct {
	id uint64

	// Name is the geometry attribute name ("position", "normal", "uv", ...).
	Name string

	// Buffer is the backing storage, shared when interleaved.
	Buffer *Buffer

	// Format is the per-vertex format. Unused for index attributes.
	Format gputypes.VertexFormat

	// IndexFormat is set for index attributes.
	IndexFormat gputypes.IndexFormat

	// Offset is the byte offset of this attribute inside an element.
	Offset uint32

	// Instanced steps the attribute per instance instead of per vertex.
	Instanced bool

	interleaved bool
}

// NewAttribute creates a non-interleaved attribute that owns its buffer.
func NewAttribute(name string, data []byte, format gputypes.VertexFormat) *Attribute {
	return &Attribute{
		id:     NextID(),
		Name:   name,
		Buffer: NewBuffer(data, uint32(format.Size())),
		Format: format,
	}
}

// NewFloat32Attribute creates an attribute from float32 components.
// itemSize must be 1 to 4.
func NewFloat32Attribute(name string, values []float32, itemSize int) *Attribute {
	return NewAttribute(name, Float32Bytes(values), float32Format(itemSize))
}

// NewInterleavedAttribute creates an attribute reading buf at offset.
func NewInterleavedAttribute(name string, buf *Buffer, format gputypes.VertexFormat, offset uint32) *Attribute {
	return &Attribute{
		id:          NextID(),
		Name:        name,
		Buffer:      buf,
		Format:      format,
		Offset:      offset,
		interleaved: true,
	}
}

// NewIndexAttribute creates a 32-bit index attribute.
func NewIndexAttribute(indices []uint32) *Attribute {
	data := make([]byte, 4*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}
	return &Attribute{
		id:          NextID(),
		Name:        "index",
		Buffer:      NewBuffer(data, 4),
		IndexFormat: gputypes.IndexFormatUint32,
	}
}

// NewIndexAttribute16 creates a 16-bit index attribute.
func NewIndexAttribute16(indices []uint16) *Attribute {
	data := make([]byte, 2*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return &Attribute{
		id:          NextID(),
		Name:        "index",
		Buffer:      NewBuffer(data, 2),
		IndexFormat: gputypes.IndexFormatUint16,
	}
}

// ID returns the attribute id.
func (a *Attribute) ID() uint64 { return a.id }

// IsInterleaved reports whether the attribute shares its buffer.
func (a *Attribute) IsInterleaved() bool { return a.interleaved }

// IsIndex reports whether the attribute holds indices.
func (a *Attribute) IsIndex() bool { return a.IndexFormat != gputypes.IndexFormatUndefined }

// Version returns the version of the backing buffer.
func (a *Attribute) Version() uint64 { return a.Buffer.Version }

// NeedsUpdate marks the backing buffer dirty.
func (a *Attribute) NeedsUpdate() { a.Buffer.NeedsUpdate() }

// Count returns the number of elements in the backing buffer.
func (a *Attribute) Count() int { return a.Buffer.Count() }

// Float32Bytes encodes values as little-endian bytes.
func Float32Bytes(values []float32) []byte {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return data
}

// BytesFloat32 decodes little-endian bytes into float32 values.
func BytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

func float32Format(itemSize int) gputypes.VertexFormat {
	switch itemSize {
	case 1:
		return gputypes.VertexFormatFloat32
	case 2:
		return gputypes.VertexFormatFloat32x2
	case 3:
		return gputypes.VertexFormatFloat32x3
	case 4:
		return gputypes.VertexFormatFloat32x4
	default:
		return gputypes.VertexFormatUndefined
	}
}
