// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/crypto"
	"github.com/lukasdietrich/briefrelay/internal/log"
)

func init() {
	viper.SetDefault("storage.cache.foldername", "data/cache")
	viper.SetDefault("storage.cache.memoryLimit", "1mb")
}

// CacheOptions configure a Cache.
type CacheOptions struct {
	// Foldername is the folder temporary files are created in.
	Foldername string
	// MemoryLimit is the maximum size of an entry kept in memory.
	MemoryLimit int64
}

// CacheOptionsFromViper reads `storage.cache.foldername` and `storage.cache.memoryLimit`.
func CacheOptionsFromViper() CacheOptions {
	return CacheOptions{
		Foldername:  viper.GetString("storage.cache.foldername"),
		MemoryLimit: int64(viper.GetSizeInBytes("storage.cache.memoryLimit")),
	}
}

// Cache is a temporary storage for received messages.
type Cache interface {
	// Write copies all the data from r into temporary storage. If the total
	// size exceeds the configured memory limit, the data is written to disk.
	Write(ctx context.Context, r io.Reader) (CacheEntry, error)
}

// CacheEntry is a single immutable blob of data kept in temporary storage.
type CacheEntry interface {
	// Reader returns a new independent reader of the full blob. Readers may
	// be used concurrently.
	Reader() (io.Reader, error)
	// Size returns the number of bytes stored.
	Size() int64
	// Release deletes data on disk, that may have been written.
	Release(ctx context.Context) error
}

type cache struct {
	fs          afero.Fs
	idGen       crypto.IDGenerator
	memoryLimit int64
}

// NewCache creates a new cache storing files in a folder of fs.
func NewCache(fs afero.Fs, idGen crypto.IDGenerator, options CacheOptions) (Cache, error) {
	if err := fs.MkdirAll(options.Foldername, 0700); err != nil {
		return nil, err
	}

	return &cache{
		fs:          afero.NewBasePathFs(fs, options.Foldername),
		idGen:       idGen,
		memoryLimit: options.MemoryLimit,
	}, nil
}

func (c *cache) Write(ctx context.Context, r io.Reader) (CacheEntry, error) {
	memory := bytes.NewBuffer(nil)

	n, err := io.Copy(memory, io.LimitReader(r, c.memoryLimit))
	if err != nil {
		return nil, err
	}

	if n < c.memoryLimit {
		return memoryEntry{data: memory.Bytes()}, nil
	}

	id, err := c.idGen.GenerateID()
	if err != nil {
		return nil, err
	}

	file, err := c.fs.Create(id)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Str("filename", id).
		Int64("memoryLimit", c.memoryLimit).
		Msg("cache entry exceeding size limit, evading to file")

	size, err := io.Copy(file, io.MultiReader(memory, r))
	if err != nil {
		log.WarnContext(ctx).
			Str("filename", id).
			Msg("could not write to cache file")

		c.discard(ctx, id, file)
		return nil, err
	}

	return fileEntry{id: id, file: &lockedFile{File: file}, fs: c.fs, size: size}, nil
}

func (c *cache) discard(ctx context.Context, id string, file afero.File) {
	if err := file.Close(); err != nil {
		log.WarnContext(ctx).
			Str("filename", id).
			Err(err).
			Msg("could not close partial cache file")
	}

	if err := c.fs.Remove(id); err != nil {
		log.WarnContext(ctx).
			Str("filename", id).
			Err(err).
			Msg("could not remove partial cache file")
	}
}

type memoryEntry struct {
	data []byte
}

func (e memoryEntry) Reader() (io.Reader, error) {
	return bytes.NewReader(e.data), nil
}

func (e memoryEntry) Size() int64 {
	return int64(len(e.data))
}

func (memoryEntry) Release(context.Context) error {
	return nil
}

type fileEntry struct {
	id   string
	file *lockedFile
	fs   afero.Fs
	size int64
}

// lockedFile serializes ReadAt, because not every afero.File implementation
// supports concurrent positional reads.
type lockedFile struct {
	afero.File
	lock sync.Mutex
}

func (f *lockedFile) ReadAt(b []byte, off int64) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.File.ReadAt(b, off)
}

// Reader uses ReadAt, so readers do not share a file offset.
func (e fileEntry) Reader() (io.Reader, error) {
	return io.NewSectionReader(e.file, 0, e.size), nil
}

func (e fileEntry) Size() int64 {
	return e.size
}

func (e fileEntry) Release(ctx context.Context) error {
	log.InfoContext(ctx).
		Str("filename", e.id).
		Msg("removing cache file")

	if err := e.file.Close(); err != nil {
		return err
	}

	return e.fs.Remove(e.id)
}
