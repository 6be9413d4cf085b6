// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/core"
)

// pollInterval is how often ReadAttribute checks for completion.
const pollInterval = time.Millisecond

const (
	vertexUsage  = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	indexUsage   = gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageVertex |
		gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
)

// buffer is the GPU copy of one core.Buffer. size is padded to four
// bytes; length is the data length it was last written with.
type buffer struct {
	raw    hal.Buffer
	size   uint64
	length int
	usage  gputypes.BufferUsage
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

// padded returns data extended with zeros to a multiple of four bytes.
func padded(data []byte) []byte {
	n := align4(uint64(len(data)))
	if uint64(len(data)) == n {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

// CreateAttribute creates a vertex buffer for attr.
func (b *Backend) CreateAttribute(attr *core.Attribute) error {
	return b.createBuffer(attr, vertexUsage)
}

// CreateIndexAttribute creates an index buffer for attr.
func (b *Backend) CreateIndexAttribute(attr *core.Attribute) error {
	return b.createBuffer(attr, indexUsage)
}

// CreateStorageAttribute creates a storage buffer for attr. It can also
// be bound as a vertex buffer, so compute output can be drawn directly.
func (b *Backend) CreateStorageAttribute(attr *core.Attribute) error {
	return b.createBuffer(attr, storageUsage)
}

func (b *Backend) createBuffer(attr *core.Attribute, usage gputypes.BufferUsage) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.buffers[attr.Buffer]; ok {
		return fmt.Errorf("%w: buffer of attribute %q", ErrAlreadyInitialized, attr.Name)
	}
	buf, err := b.allocBuffer(b.label(attr.Buffer.Label, attr.Name), attr.Buffer.Data, usage)
	if err != nil {
		return err
	}
	b.buffers[attr.Buffer] = buf
	return nil
}

func (b *Backend) allocBuffer(label string, data []byte, usage gputypes.BufferUsage) (*buffer, error) {
	size := max(align4(uint64(len(data))), 4)
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer %q: %w", label, err)
	}
	buf := &buffer{raw: raw, size: size, usage: usage}
	if err := b.writeBuffer(buf, data); err != nil {
		b.device.DestroyBuffer(raw)
		return nil, err
	}
	return buf, nil
}

func (b *Backend) writeBuffer(buf *buffer, data []byte) error {
	buf.length = len(data)
	if len(data) == 0 {
		return nil
	}
	if err := b.queue.WriteBuffer(buf.raw, 0, padded(data)); err != nil {
		return fmt.Errorf("native: write buffer: %w", err)
	}
	return nil
}

// UpdateAttribute uploads the buffer of attr again. A buffer that grew
// is replaced; bind groups using it are rebuilt before their next use.
func (b *Backend) UpdateAttribute(attr *core.Attribute) error {
	if err := b.check(); err != nil {
		return err
	}
	buf, ok := b.buffers[attr.Buffer]
	if !ok {
		return fmt.Errorf("%w: buffer of attribute %q", ErrNotInitialized, attr.Name)
	}
	data := attr.Buffer.Data
	if align4(uint64(len(data))) <= buf.size {
		return b.writeBuffer(buf, data)
	}

	slogger().Warn("native: buffer grew, recreating", "attribute", attr.Name, "from", buf.size, "to", len(data))
	next, err := b.allocBuffer(b.label(attr.Buffer.Label, attr.Name), data, buf.usage)
	if err != nil {
		return err
	}
	old := buf.raw
	b.retire(func() { b.device.DestroyBuffer(old) })
	b.buffers[attr.Buffer] = next
	return nil
}

// DestroyAttribute releases the buffer of attr.
func (b *Backend) DestroyAttribute(attr *core.Attribute) {
	buf, ok := b.buffers[attr.Buffer]
	if !ok {
		return
	}
	delete(b.buffers, attr.Buffer)
	b.retire(func() { b.device.DestroyBuffer(buf.raw) })
}

// ReadAttribute copies the GPU buffer of attr into a mappable staging
// buffer and returns its contents once the copy completed. It returns
// ctx.Err() when ctx ends first; the staging buffer is then released
// after the copy finishes.
func (b *Backend) ReadAttribute(ctx context.Context, attr *core.Attribute) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	src, ok := b.buffers[attr.Buffer]
	if !ok {
		return nil, fmt.Errorf("%w: buffer of attribute %q", ErrNotInitialized, attr.Name)
	}

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label("readback", attr.Name),
		Size:  src.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create readback buffer: %w", err)
	}
	enc, err := b.encoder("readback")
	if err != nil {
		b.device.DestroyBuffer(staging)
		return nil, err
	}
	enc.CopyBufferToBuffer(src.raw, staging, []hal.BufferCopy{{Size: src.size}})
	index, err := b.submit(enc)
	if err != nil {
		b.device.DestroyBuffer(staging)
		return nil, err
	}

	if err := b.wait(ctx, index); err != nil {
		b.retireAt(index, func() { b.device.DestroyBuffer(staging) })
		return nil, err
	}
	defer b.device.DestroyBuffer(staging)

	m, err := b.device.MapBuffer(staging, 0, src.size)
	if err != nil {
		return nil, fmt.Errorf("native: map readback buffer: %w", err)
	}
	out := make([]byte, src.length)
	copy(out, unsafe.Slice((*byte)(m.Ptr), src.size))
	if err := b.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("native: unmap readback buffer: %w", err)
	}
	b.collect()
	return out, nil
}

// wait blocks until the queue completed index or ctx ends.
func (b *Backend) wait(ctx context.Context, index uint64) error {
	if b.queue.PollCompleted() >= index {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for b.queue.PollCompleted() < index {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// encoder creates a command encoder and begins recording.
func (b *Backend) encoder(label string) (hal.CommandEncoder, error) {
	label = b.label(label)
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return enc, nil
}
