package core

// ComputeNode is a compute dispatch: a WGSL compute shader, the storage
// attributes it reads and writes, and a workgroup count.
//
// Storage attributes are bound in order at @group(0) @binding(i). The
// entry point is "main".
type ComputeNode struct {
	Disposer

	id uint64

	Name string

	// Source is the WGSL compute shader.
	Source string

	// Storage lists the buffers bound to the shader.
	Storage []*Attribute

	// Workgroups is the dispatch size in workgroups.
	Workgroups [3]uint32

	// Version is bumped by NeedsUpdate; a new version rebuilds the pipeline.
	Version uint64
}

// NewComputeNode creates a compute node dispatching x workgroups.
func NewComputeNode(source string, x uint32, storage ...*Attribute) *ComputeNode {
	return &ComputeNode{
		id:         NextID(),
		Source:     source,
		Storage:    storage,
		Workgroups: [3]uint32{x, 1, 1},
	}
}

// ID returns the node id.
func (n *ComputeNode) ID() uint64 { return n.id }

// NeedsUpdate marks the node dirty.
func (n *ComputeNode) NeedsUpdate() { n.Version++ }
