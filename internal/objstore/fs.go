package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const defaultNestingDepth = 2

// FSConfig configures the filesystem backend.
type FSConfig struct {
	Root string
	// URLTemplate may contain {bucket}, {paths} and {filename}.
	URLTemplate  string
	NestingDepth int
}

// FS stores objects as files under Root, sharded by 2-character slices of
// the object name.
type FS struct {
	fs   afero.Fs
	cfg  FSConfig
	pool *IOPool
}

// NewFS returns a backend on the OS filesystem.
func NewFS(cfg FSConfig, pool *IOPool) (*FS, error) {
	return NewFSWithFs(afero.NewOsFs(), cfg, pool)
}

// NewFSWithFs returns a backend on the given afero filesystem.
func NewFSWithFs(afs afero.Fs, cfg FSConfig, pool *IOPool) (*FS, error) {
	if cfg.Root == "" {
		return nil, errors.New("fs storage: root is required")
	}
	if cfg.NestingDepth <= 0 {
		cfg.NestingDepth = defaultNestingDepth
	}
	if err := afs.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FS{fs: afs, cfg: cfg, pool: pool}, nil
}

func newFSFromOptions(opts map[string]string, pool *IOPool) (Storage, error) {
	cfg := FSConfig{
		Root:        opts["root"],
		URLTemplate: opts["url_template"],
	}
	if v := opts["nesting_depth"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse nesting_depth: %w", err)
		}
		cfg.NestingDepth = n
	}
	return NewFS(cfg, pool)
}

// Fs exposes the underlying filesystem so callers can open returned paths.
func (s *FS) Fs() afero.Fs { return s.fs }

func (s *FS) shards(name string) []string {
	var dirs []string
	for level := 0; level < s.cfg.NestingDepth; level++ {
		start := level * 2
		if start >= len(name) {
			break
		}
		end := min(start+2, len(name))
		dirs = append(dirs, name[start:end])
	}
	return dirs
}

func (s *FS) objectPath(bucket, name string) string {
	parts := append([]string{s.cfg.Root, bucket}, s.shards(name)...)
	return filepath.Join(append(parts, name)...)
}

func (s *FS) object(bucket, name string) StoredObject {
	obj := StoredObject{Filename: name, Path: s.objectPath(bucket, name)}
	if s.cfg.URLTemplate != "" {
		r := strings.NewReplacer(
			"{bucket}", bucket,
			"{paths}", strings.Join(s.shards(name), "/"),
			"{filename}", name,
		)
		obj.URL = r.Replace(s.cfg.URLTemplate)
	}
	return obj
}

func (s *FS) run(ctx context.Context, fn func() error) error {
	if s.pool == nil {
		return fn()
	}
	return s.pool.Do(ctx, fn)
}

// putChunkSize bounds how long a single Put holds a pool worker.
const putChunkSize = 256 << 10

// Put writes data to a temporary file and renames it into place so a failed
// copy never leaves a partial object behind. data is read outside the pool;
// only file operations and chunk writes run on pool workers.
func (s *FS) Put(ctx context.Context, bucket, name string, data io.Reader) (StoredObject, error) {
	obj := s.object(bucket, name)
	tmp := obj.Path + ".part"

	var f afero.File
	err := s.run(ctx, func() error {
		if err := s.fs.MkdirAll(filepath.Dir(obj.Path), 0o755); err != nil {
			return err
		}
		var err error
		f, err = s.fs.Create(tmp)
		return err
	})
	if err == nil {
		err = s.copyChunks(ctx, f, readerWithContext(ctx, data))
		cerr := s.run(context.WithoutCancel(ctx), func() error {
			closeErr := f.Close()
			if err != nil || closeErr != nil {
				_ = s.fs.Remove(tmp)
				return closeErr
			}
			return s.fs.Rename(tmp, obj.Path)
		})
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return StoredObject{}, fmt.Errorf("put %s/%s: %w", bucket, name, err)
	}
	return obj, nil
}

func (s *FS) copyChunks(ctx context.Context, f afero.File, r io.Reader) error {
	buf := make([]byte, putChunkSize)
	for {
		var (
			n    int
			rerr error
		)
		for n < len(buf) && rerr == nil {
			var m int
			m, rerr = r.Read(buf[n:])
			n += m
		}
		if n > 0 {
			chunk := buf[:n]
			if err := s.run(ctx, func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				_, err := f.Write(chunk)
				return err
			}); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// FPut copies a local file into the store.
func (s *FS) FPut(ctx context.Context, bucket, name, localPath string) (StoredObject, error) {
	f, err := s.fs.Open(localPath)
	if err != nil {
		return StoredObject{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.Put(ctx, bucket, name, f)
}

// Get opens the object for reading. A handle opened by a job that finishes
// after ctx is done is closed rather than leaked.
func (s *FS) Get(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	var (
		mu        sync.Mutex
		f         afero.File
		abandoned bool
	)
	path := s.objectPath(bucket, name)
	err := s.run(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		opened, err := s.fs.Open(path)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			return opened.Close()
		}
		f = opened
		return nil
	})
	if err != nil {
		mu.Lock()
		abandoned = true
		if f != nil {
			_ = f.Close()
			f = nil
		}
		mu.Unlock()
		return nil, notFound(bucket, name, err)
	}
	return f, nil
}

func (s *FS) FGet(ctx context.Context, bucket, name, destPath string) (StoredObject, error) {
	obj := s.object(bucket, name)
	if _, err := s.Stat(ctx, bucket, name); err != nil {
		return StoredObject{}, err
	}
	if destPath == "" {
		return obj, nil
	}
	err := s.run(ctx, func() error {
		src, err := s.fs.Open(obj.Path)
		if err != nil {
			return err
		}
		defer src.Close()
		if err := s.fs.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		dst, err := s.fs.Create(destPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("copy %s/%s to %s: %w", bucket, name, destPath, err)
	}
	obj.Path = destPath
	return obj, nil
}

func (s *FS) Stat(ctx context.Context, bucket, name string) (ObjectInfo, error) {
	var info os.FileInfo
	path := s.objectPath(bucket, name)
	err := s.run(ctx, func() error {
		var err error
		info, err = s.fs.Stat(path)
		return err
	})
	if err != nil {
		return ObjectInfo{}, notFound(bucket, name, err)
	}
	return ObjectInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Remove deletes the object. Removing a missing object is not an error.
func (s *FS) Remove(ctx context.Context, bucket, name string) error {
	path := s.objectPath(bucket, name)
	err := s.run(ctx, func() error {
		err := s.fs.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", bucket, name, err)
	}
	return nil
}

func (s *FS) List(ctx context.Context, bucket string) ([]StoredObject, error) {
	root := filepath.Join(s.cfg.Root, bucket)
	var objects []StoredObject
	err := s.run(ctx, func() error {
		exists, err := afero.DirExists(s.fs, root)
		if err != nil || !exists {
			return err
		}
		return afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || strings.HasSuffix(path, ".part") {
				return nil
			}
			objects = append(objects, s.object(bucket, info.Name()))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}
	return objects, nil
}

func notFound(bucket, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", bucket, name, ErrObjectNotFound)
	}
	return fmt.Errorf("%s/%s: %w", bucket, name, err)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
