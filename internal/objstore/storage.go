// Package objstore provides named-bucket blob storage used underneath the
// URL file cache.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Sentinel errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// StoredObject is the result of a put or get.
// Path always resolves to a file in the backend; URL is empty when the
// backend has no public URL template.
type StoredObject struct {
	Filename string
	Path     string
	URL      string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// Storage is a blob store keyed by bucket and object name.
// Implementations must be safe for concurrent use.
type Storage interface {
	Put(ctx context.Context, bucket, name string, data io.Reader) (StoredObject, error)
	FPut(ctx context.Context, bucket, name, localPath string) (StoredObject, error)
	Get(ctx context.Context, bucket, name string) (io.ReadCloser, error)
	// FGet returns the object. With an empty destPath the returned Path points
	// into the store; otherwise the object is copied to destPath.
	FGet(ctx context.Context, bucket, name, destPath string) (StoredObject, error)
	Stat(ctx context.Context, bucket, name string) (ObjectInfo, error)
	Remove(ctx context.Context, bucket, name string) error
	List(ctx context.Context, bucket string) ([]StoredObject, error)
}

// Factory builds a backend from string options.
type Factory func(opts map[string]string, pool *IOPool) (Storage, error)

// Registry maps configuration keys to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the "fs" backend registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("fs", newFSFromOptions)
	return r
}

// Register adds or replaces a backend factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the backend registered under name.
func (r *Registry) New(name string, opts map[string]string, pool *IOPool) (Storage, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return f(opts, pool)
}

// Names returns registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
