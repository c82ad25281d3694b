package prefixlock

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// FileName is the lock taken on a prefix while it is being installed into.
const FileName = ".pixi-install-to-prefix.lock"

// Take creates path exclusively, polling once a second while another
// process holds it. waiting is called on every failed attempt. The returned
// func releases the lock.
func Take(ctx context.Context, path string, waiting func()) (func(), error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	var f *os.File

	for {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			break
		}

		if !os.IsExist(err) {
			return nil, err
		}

		if waiting != nil {
			waiting()
		}

		select {
		case <-tk.C:
			// ok
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.Close()

	closer := func() {
		os.Remove(path)
	}

	return closer, nil
}

// Prefix takes the lock of an installation prefix.
func Prefix(ctx context.Context, prefix string, waiting func()) (func(), error) {
	return Take(ctx, filepath.Join(prefix, FileName), waiting)
}
