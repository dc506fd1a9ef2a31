package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/spf13/afero"
)

// Document is a JSON file rewritten as a whole on every mutation. Reads share
// the lock; Update holds it exclusively across read, modify and write so
// concurrent writers cannot drop each other's changes.
type Document[T any] struct {
	mu   sync.RWMutex
	fs   afero.Fs
	path string
}

func NewDocument[T any](fsys afero.Fs, path string) *Document[T] {
	return &Document[T]{fs: fsys, path: path}
}

func (d *Document[T]) Path() string {
	return d.path
}

func (d *Document[T]) Read(ctx context.Context) (T, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return d.load()
}

func (d *Document[T]) Update(ctx context.Context, fn func(*T) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	v, err := d.load()
	if err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return d.store(v)
}

// load returns the zero value for a missing or empty file.
func (d *Document[T]) load() (T, error) {
	var v T

	data, err := afero.ReadFile(d.fs, d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("read %s: %w", d.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", d.path, err)
	}
	return v, nil
}

func (d *Document[T]) store(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.path, err)
	}

	tmp := d.path + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := d.fs.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", d.path, err)
	}
	return nil
}
