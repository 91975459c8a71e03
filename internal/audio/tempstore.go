/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// Handle is an opaque reference to a stored audio file.
type Handle string

// ErrUnknownHandle is returned for handles the store never issued or already released.
var ErrUnknownHandle = errors.New("unknown audio handle")

// Saver persists encoded audio and returns a handle to it.
type Saver interface {
	Save(data []byte, format string) (Handle, error)
}

type storedFile struct {
	path   string
	format string
}

// TempStore keeps audio artifacts as files in a temporary directory.
type TempStore struct {
	dir    string
	retain bool

	mu    sync.RWMutex
	files map[Handle]storedFile
}

// NewTempStore creates a store writing to dir, or the OS temp directory when
// dir is empty. With retain set, released files stay on disk.
func NewTempStore(dir string, retain bool) (*TempStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audio directory %s: %w", dir, err)
		}
	}

	return &TempStore{
		dir:    dir,
		retain: retain,
		files:  make(map[Handle]storedFile),
	}, nil
}

// Save writes data to a new uniquely named file voicechat-*.<format>.
func (s *TempStore) Save(data []byte, format string) (Handle, error) {
	f, err := os.CreateTemp(s.dir, "voicechat-*."+format)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close audio file: %w", err)
	}

	handle := Handle(uuid.NewString())

	s.mu.Lock()
	s.files[handle] = storedFile{path: f.Name(), format: format}
	s.mu.Unlock()

	return handle, nil
}

func (s *TempStore) lookup(handle Handle) (storedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[handle]
	if !ok {
		return storedFile{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return file, nil
}

// Path returns the file path behind a handle.
func (s *TempStore) Path(handle Handle) (string, error) {
	file, err := s.lookup(handle)
	if err != nil {
		return "", err
	}
	return file.path, nil
}

// Open opens the file behind a handle and returns it with its content type.
func (s *TempStore) Open(handle Handle) (*os.File, string, error) {
	file, err := s.lookup(handle)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(file.path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}

	return f, ContentType(file.format), nil
}

// Release forgets the given handles and deletes their files unless the
// store retains files.
func (s *TempStore) Release(handles ...Handle) {
	s.mu.Lock()
	released := make([]storedFile, 0, len(handles))
	for _, h := range handles {
		if file, ok := s.files[h]; ok {
			released = append(released, file)
			delete(s.files, h)
		}
	}
	s.mu.Unlock()

	if s.retain {
		return
	}

	for _, file := range released {
		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			logging.LogWarn("⚠️ Failed to remove audio file",
				zap.String("path", file.path),
				zap.Error(err),
			)
		}
	}
}

// Len returns the number of live handles.
func (s *TempStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Close releases every handle the store still holds.
func (s *TempStore) Close() error {
	s.mu.RLock()
	handles := make([]Handle, 0, len(s.files))
	for h := range s.files {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	s.Release(handles...)
	return nil
}

// ContentType maps an audio format name to its MIME type.
func ContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
