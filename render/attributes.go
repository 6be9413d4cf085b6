package render

import (
	"fmt"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
)

// AttributeKind selects the GPU buffer usage of an attribute.
type AttributeKind int

const (
	AttributeVertex AttributeKind = iota
	AttributeIndex
	AttributeStorage
)

// String returns the kind name.
func (k AttributeKind) String() string {
	switch k {
	case AttributeVertex:
		return "vertex"
	case AttributeIndex:
		return "index"
	case AttributeStorage:
		return "storage"
	default:
		return fmt.Sprintf("AttributeKind(%d)", int(k))
	}
}

// AttributeRecord is the GPU-side state of one buffer.
type AttributeRecord struct {
	// Version is the buffer version last synced to the GPU.
	Version     uint64
	Initialized bool
	Kind        AttributeKind
}

// Attributes tracks the GPU buffer behind every attribute. Records are
// keyed by the backing core.Buffer, so interleaved attributes share one.
type Attributes struct {
	backend Backend
	records *cache.IdentityMap[core.Buffer, AttributeRecord]
}

// NewAttributes creates an attribute cache over backend.
func NewAttributes(backend Backend) *Attributes {
	return &Attributes{
		backend: backend,
		records: cache.NewIdentityMap[core.Buffer, AttributeRecord](),
	}
}

// Update creates the GPU buffer on first sight and re-uploads it when the
// buffer version moved or the buffer is dynamic.
func (a *Attributes) Update(attr *core.Attribute, kind AttributeKind) error {
	rec := a.records.Get(attr.Buffer)
	buf := attr.Buffer

	if !rec.Initialized {
		var err error
		switch kind {
		case AttributeVertex:
			err = a.backend.CreateAttribute(attr)
		case AttributeIndex:
			err = a.backend.CreateIndexAttribute(attr)
		case AttributeStorage:
			err = a.backend.CreateStorageAttribute(attr)
		default:
			a.records.Delete(buf)
			return fmt.Errorf("render: update %q: %w: %v", attr.Name, ErrUnknownAttributeKind, kind)
		}
		if err != nil {
			a.records.Delete(buf)
			return fmt.Errorf("render: create %s attribute %q: %w", kind, attr.Name, err)
		}
		rec.Initialized = true
		rec.Kind = kind
		rec.Version = buf.Version
		slogger().Debug("render: attribute created", "name", attr.Name, "kind", kind, "bytes", len(buf.Data))
		return nil
	}

	if rec.Version == buf.Version && buf.Usage != core.UsageDynamic {
		return nil
	}
	if err := a.backend.UpdateAttribute(attr); err != nil {
		return fmt.Errorf("render: update attribute %q: %w", attr.Name, err)
	}
	rec.Version = buf.Version
	return nil
}

// Get returns the record of attr, or nil when it was never uploaded.
func (a *Attributes) Get(attr *core.Attribute) *AttributeRecord {
	rec, ok := a.records.Lookup(attr.Buffer)
	if !ok {
		return nil
	}
	return rec
}

// Delete frees the GPU buffer of attr if one exists.
func (a *Attributes) Delete(attr *core.Attribute) {
	if _, ok := a.records.Delete(attr.Buffer); ok {
		a.backend.DestroyAttribute(attr)
	}
}

// Len returns the number of tracked buffers.
func (a *Attributes) Len() int { return a.records.Len() }
