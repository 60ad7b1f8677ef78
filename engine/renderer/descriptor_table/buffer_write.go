package descriptor_table

import "github.com/Carmen-Shannon/oxy-rt/common"

// BufferWrite describes a single GPU buffer write operation targeting a resource at a given
// byte offset.
type BufferWrite struct {
	Resource common.ResourceHandle
	Offset   uint64
	Data     []byte
}
