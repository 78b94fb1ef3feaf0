package buffer

import (
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/model"
)

var (
	ErrSealed     = errors.New("frame buffer is sealed")
	ErrEmptyFrame = errors.New("empty audio frame")
)

// Frames is an append-only FIFO of audio chunks. Once sealed it is read as a
// single byte sequence in arrival order. It is not safe for concurrent use;
// the owning session serializes access.
type Frames struct {
	items  []model.AudioChunk
	size   int
	sealed bool
}

// New creates and returns an empty, unsealed buffer.
func New() *Frames {
	return &Frames{items: []model.AudioChunk{}}
}

// Append copies chunk onto the end of the buffer.
func (f *Frames) Append(chunk model.AudioChunk) error {
	if f.sealed {
		return ErrSealed
	}
	if len(chunk) == 0 {
		return ErrEmptyFrame
	}
	owned := make(model.AudioChunk, len(chunk))
	copy(owned, chunk)
	f.items = append(f.items, owned)
	f.size += len(owned)
	return nil
}

// Seal stops further appends. It is idempotent.
func (f *Frames) Seal() {
	f.sealed = true
}

func (f *Frames) Sealed() bool {
	return f.sealed
}

// Len returns the number of frames.
func (f *Frames) Len() int {
	return len(f.items)
}

// Size returns the total number of buffered bytes.
func (f *Frames) Size() int {
	return f.size
}

// IsEmpty returns true if no frame has been appended.
func (f *Frames) IsEmpty() bool {
	return len(f.items) == 0
}

// Bytes concatenates every frame in arrival order.
func (f *Frames) Bytes() []byte {
	out := make([]byte, 0, f.size)
	for _, item := range f.items {
		out = append(out, item...)
	}
	return out
}
