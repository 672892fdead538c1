package provisioner

import (
	"context"
	"fmt"
	"os"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/attestify/keybox-provisioner/keybox"
)

// FileSource reads a keybox container from the local filesystem.
type FileSource struct {
	// Path of the container file.
	Path string

	// MaxSize bounds the container file size, checked before the file is
	// read. Zero selects keybox.DefaultMaxKeyboxSize plus the container
	// header length.
	MaxSize int64
}

func (s FileSource) Retrieve(_ context.Context) ([]byte, error) {
	max := s.MaxSize
	if max <= 0 {
		max = keybox.DefaultMaxKeyboxSize + keybox.HeaderLen
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRetrieval, err)
	}
	if info.Size() > max {
		return nil, fmt.Errorf("%w: container file is %d bytes, limit is %d",
			interfaces.ErrRetrieval, info.Size(), max)
	}

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRetrieval, err)
	}
	return raw, nil
}

// StaticSource serves a fixed container from memory.
type StaticSource []byte

func (s StaticSource) Retrieve(_ context.Context) ([]byte, error) {
	return []byte(s), nil
}
