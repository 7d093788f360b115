// Package blockstore implements the fixed-size block pool used to
// persist document payloads outside the document record, plus
// the block pointer table that chains a logical entry to its blocks.
//
// Each Store owns one backing file under a single sandboxed directory:
// a Store never takes a bare path, only a *os.Root plus a filename, so
// all block files stay confined to the engine's data directory. Blocks are
// fixed width; allocate/write/read/free operate by block index, not
// byte offset, and disk I/O is dispatched onto the bounded worker pool
// in pool.go, which bounds how many disk operations run at once; each
// call waits for its job's result.
package blockstore

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Size classes: small payloads, medium payloads, and large payloads
// each get their own block file and block width.
const (
	SmallBlockSize  = 4 * 1024
	MediumBlockSize = 64 * 1024
	LargeBlockSize  = 1024 * 1024
)

// Store manages one fixed-block-size file: allocation, free-list
// reuse, and reads/writes addressed by block index.
type Store struct {
	root      *os.Root
	name      string
	blockSize int

	mu    sync.Mutex
	file  *os.File
	free  []int64
	tail  int64 // next unallocated block index
	pool  *Pool
}

// Open opens (creating if absent) the block file name under root, and
// rebuilds the free list by a full scan of an accompanying bitmap file
// (name+".bitmap"), since a block store with no durable free-list
// record would otherwise leak every freed block on reopen.
func Open(root *os.Root, name string, blockSize int, pool *Pool) (*Store, error) {
	f, err := root.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockstore: stat %s: %w", name, err)
	}
	s := &Store{
		root:      root,
		name:      name,
		blockSize: blockSize,
		file:      f,
		tail:      info.Size() / int64(blockSize),
		pool:      pool,
	}
	if err := s.rebuildFreeList(root); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// bitmapName is the sidecar file recording which block indices are
// free, one byte per block (0 = allocated, 1 = free). A byte-per-block
// bitmap keeps the rebuild scan trivial and is cheap relative to the
// block sizes themselves (4 KiB and up).
func (s *Store) bitmapName() string { return s.name + ".bitmap" }

func (s *Store) rebuildFreeList(root *os.Root) error {
	bf, err := root.OpenFile(s.bitmapName(), os.O_RDONLY, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("blockstore: open bitmap %s: %w", s.bitmapName(), err)
	}
	defer bf.Close()

	buf := make([]byte, 4096)
	var blockID int64
	for {
		n, err := bf.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == 1 {
				s.free = append(s.free, blockID)
			}
			blockID++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("blockstore: read bitmap %s: %w", s.bitmapName(), err)
		}
	}
	return nil
}

func (s *Store) persistFreeBit(root *os.Root, blockID int64, free bool) error {
	bf, err := root.OpenFile(s.bitmapName(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("blockstore: open bitmap %s: %w", s.bitmapName(), err)
	}
	defer bf.Close()
	var b byte
	if free {
		b = 1
	}
	if _, err := bf.WriteAt([]byte{b}, blockID); err != nil {
		return fmt.Errorf("blockstore: write bitmap %s: %w", s.bitmapName(), err)
	}
	return nil
}

// Allocate returns a free block id, reusing a freed block if one is
// available, otherwise extending the file at the tail.
func (s *Store) Allocate() (int64, error) {
	result, err := s.pool.Submit(func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if len(s.free) > 0 {
			id := s.free[len(s.free)-1]
			s.free = s.free[:len(s.free)-1]
			if err := s.persistFreeBit(s.root, id, false); err != nil {
				return nil, err
			}
			return id, nil
		}

		id := s.tail
		zero := make([]byte, s.blockSize)
		if _, err := s.file.WriteAt(zero, id*int64(s.blockSize)); err != nil {
			return nil, fmt.Errorf("blockstore: allocate %s block %d: %w", s.name, id, err)
		}
		s.tail++
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Write stores data in blockID, zero-padded to the block width. data
// must not exceed the block size.
func (s *Store) Write(blockID int64, data []byte) error {
	if len(data) > s.blockSize {
		return fmt.Errorf("blockstore: write block %d: payload %d bytes exceeds block size %d", blockID, len(data), s.blockSize)
	}
	_, err := s.pool.Submit(func() (any, error) {
		buf := make([]byte, s.blockSize)
		copy(buf, data)
		s.mu.Lock()
		_, err := s.file.WriteAt(buf, blockID*int64(s.blockSize))
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("blockstore: write block %d: %w", blockID, err)
		}
		return nil, nil
	})
	return err
}

// Read returns the full block width stored at blockID. Trailing zero
// padding is part of the returned slice; callers that wrote a payload
// shorter than the block size know its true length out of band (the
// engine records it in the document record's Size field).
func (s *Store) Read(blockID int64) ([]byte, error) {
	result, err := s.pool.Submit(func() (any, error) {
		buf := make([]byte, s.blockSize)
		s.mu.Lock()
		_, err := s.file.ReadAt(buf, blockID*int64(s.blockSize))
		s.mu.Unlock()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("blockstore: read block %d: %w", blockID, err)
		}
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Free returns blockID to the free list for reuse by a future Allocate.
func (s *Store) Free(blockID int64) error {
	_, err := s.pool.Submit(func() (any, error) {
		s.mu.Lock()
		s.free = append(s.free, blockID)
		s.mu.Unlock()
		return nil, s.persistFreeBit(s.root, blockID, true)
	})
	return err
}

// BlockSize returns the fixed block width this store was opened with.
func (s *Store) BlockSize() int { return s.blockSize }

// Close flushes and closes the backing file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
