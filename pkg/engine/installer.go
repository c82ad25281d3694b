package engine

import (
	"context"

	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pkg/errors"
)

// Installer turns a prefix into exactly the given set of packages.
type Installer struct{}

// Install computes the transaction from the packages currently in prefix
// to records, fetches what is missing into the package cache and applies
// it. Removals are applied before any package is linked.
func (i *Installer) Install(ctx context.Context, opts *Options, prefix string, records []*data.RepoDataRecord) (*data.Transaction, error) {
	if opts == nil {
		opts = &Options{}
	}

	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	L := opts.L

	installed, err := ReadPrefix(prefix)
	if err != nil {
		return nil, err
	}

	tx := ComputeTransaction(installed, records)

	L.Debug("computed transaction", "installed", len(installed), "desired", len(records), "operations", len(tx.Operations))

	if len(tx.Operations) == 0 {
		L.Info("prefix is up to date", "prefix", prefix)
		return tx, nil
	}

	cache := &Cache{
		Dir:      opts.CacheDir,
		Client:   opts.Client.HTTPClient(),
		Reporter: opts.Reporter,
		L:        L,
	}

	dirs, err := cache.FetchAll(ctx, tx.Installed(), opts.Concurrency)
	if err != nil {
		return nil, err
	}

	l := &linker{
		prefix:   prefix,
		platform: opts.Platform,
		L:        L,
	}

	if v := pythonMinor(records); v != "" {
		l.python = newPythonInfo(v, opts.Platform)
	}

	bar := opts.Reporter.Count(int64(len(tx.Operations)), "linking")
	defer bar.Close()

	var toLink []*data.Operation

	for _, op := range tx.Operations {
		if op.Old != nil {
			if opts.ExecuteLinkScripts {
				l.runScript(ctx, &op.Old.RepoDataRecord, preUnlink)
			}

			if err := l.unlink(op.Old); err != nil {
				return nil, errors.Wrapf(err, "removing %s", op.Old.RepoDataRecord.String())
			}
		}

		if op.New != nil {
			toLink = append(toLink, op)
		} else {
			bar.Tick()
		}
	}

	for _, op := range linkOrder(toLink) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bar.On(op.New.Name)

		if _, err := l.link(ctx, op.New, dirs[op.New]); err != nil {
			return nil, errors.Wrapf(err, "installing %s", op.New)
		}

		if opts.ExecuteLinkScripts {
			l.runScript(ctx, op.New, postLink)
		}

		L.Debug("linked package", "package", op.New.String(), "operation", string(op.Kind))

		bar.Tick()
	}

	return tx, nil
}
