package filecache

import (
	"bufio"
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"aeroport/internal/objstore"
)

var gzipMagic = []byte{0x1f, 0x8b}

// GunzipHook replaces a gzip-compressed download with its decompressed
// content under the same name. Other content passes through unchanged.
func GunzipHook(ctx context.Context, store objstore.Storage, bucket string, obj objstore.StoredObject) (objstore.StoredObject, error) {
	rc, err := store.Get(ctx, bucket, obj.Filename)
	if err != nil {
		return obj, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, err := br.Peek(len(gzipMagic))
	if err != nil || !bytes.Equal(head, gzipMagic) {
		return obj, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return obj, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := store.Put(ctx, bucket, obj.Filename, zr)
	if err != nil {
		return obj, fmt.Errorf("store decompressed %s: %w", obj.Filename, err)
	}
	return out, nil
}
