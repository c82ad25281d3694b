package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/config"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/data"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/engine"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/netclient"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/prefixlock"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/progress"
)

//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks . Engine

// Engine downloads, extracts and links packages into a prefix.
type Engine interface {
	Install(ctx context.Context, opts *engine.Options, prefix string, records []*data.RepoDataRecord) (*data.Transaction, error)
}

// HistoryFile is the marker some tools require before they accept a
// directory as a conda prefix.
const HistoryFile = "history"

// InstallSummary describes what an installation changed.
type InstallSummary struct {
	// Operations counts installs, removals and relinks.
	Operations  int
	Transaction *data.Transaction
}

// PrefixInstall installs a set of records into a prefix and finishes the
// prefix so that conda tooling accepts it.
type PrefixInstall struct {
	common

	// Engine defaults to engine.Installer.
	Engine Engine

	CacheDir    string
	Concurrency int

	// Args is recorded as the command line in the prefix history.
	Args []string

	// Out receives the lock wait notice. Defaults to os.Stderr.
	Out io.Writer

	now func() time.Time
}

func (p *PrefixInstall) Install(
	ctx context.Context,
	prefix string,
	platform config.Platform,
	records []*data.RepoDataRecord,
	client *netclient.Client,
) (*InstallSummary, error) {
	eng := p.Engine
	if eng == nil {
		eng = &engine.Installer{}
	}

	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	var shown bool

	unlock, err := prefixlock.Prefix(ctx, prefix, func() {
		if !shown {
			fmt.Fprintln(out, "Lock detected, waiting...")
			shown = true
		}
	})
	if err != nil {
		return nil, &InstallError{Kind: ErrPrefixLock, Err: err}
	}

	defer unlock()

	opts := &engine.Options{
		Platform:           platform,
		Client:             client,
		ExecuteLinkScripts: true,
		Reporter:           progress.FromContext(ctx),
		CacheDir:           p.CacheDir,
		Concurrency:        p.Concurrency,
		L:                  p.L(),
	}

	p.L().Info("installing packages", "prefix", prefix, "platform", platform, "count", len(records))

	tx, err := eng.Install(ctx, opts, prefix, records)
	if err != nil {
		return nil, &InstallError{Kind: ErrEngine, Err: err}
	}

	if tx == nil {
		tx = &data.Transaction{}
	}

	if err := p.appendHistory(prefix, tx); err != nil {
		return nil, &InstallError{Kind: ErrPostInstall, Err: err}
	}

	return &InstallSummary{
		Operations:  len(tx.Operations),
		Transaction: tx,
	}, nil
}

// appendHistory adds an entry to conda-meta/history. Existing content is
// never truncated.
func (p *PrefixInstall) appendHistory(prefix string, tx *data.Transaction) error {
	dir := filepath.Join(prefix, engine.MetaDir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, HistoryFile)

	now := time.Now
	if p.now != nil {
		now = p.now
	}

	var entry strings.Builder

	fmt.Fprintf(&entry, "==> %s <==\n", now().Format("2006-01-02 15:04:05"))

	if len(p.Args) > 0 {
		fmt.Fprintf(&entry, "# cmd: %s\n", shellquote.Join(p.Args...))
	}

	for _, rec := range tx.Removed() {
		fmt.Fprintf(&entry, "-%s\n", rec.RepoDataRecord.String())
	}

	for _, rec := range tx.Installed() {
		fmt.Fprintf(&entry, "+%s\n", rec.String())
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	_, err = f.WriteString(entry.String())
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return err
	}

	p.L().Debug("updated prefix history", "path", path)

	return nil
}
