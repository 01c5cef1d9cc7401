// Package wallet supplies payout addresses to the orchestrator in
// round-robin order.
package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Load reads a wallet list: one address per line, blank lines and
// #-comments ignored. An empty result is an error; a miner with no
// payout identity has nothing to do.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallets file %s: %w", path, err)
	}

	var wallets []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wallets = append(wallets, line)
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no wallet addresses in %s", path)
	}
	return wallets, nil
}

// Provider hands out addresses round-robin and hot-reloads the backing
// file when it changes, so wallets can be added without restarting a
// miner that may be hours into a session.
type Provider struct {
	logger *zap.Logger
	path   string

	mu      sync.RWMutex
	wallets []string
	next    int

	watcher *fsnotify.Watcher
}

// NewProvider loads the initial list and starts watching the file. The
// watch is best effort: if the platform watcher cannot start, the
// initial list simply stays fixed.
func NewProvider(logger *zap.Logger, path string) (*Provider, error) {
	wallets, err := Load(path)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		logger:  logger.Named("wallets"),
		path:    path,
		wallets: wallets,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("wallet file watcher unavailable", zap.Error(err))
		return p, nil
	}
	// Watch the directory: editors replace files rather than rewrite them.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		p.logger.Warn("cannot watch wallet directory", zap.Error(err))
		watcher.Close()
		return p, nil
	}
	p.watcher = watcher
	go p.watch()
	return p, nil
}

// Next returns the next wallet in rotation.
func (p *Provider) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.wallets[p.next%len(p.wallets)]
	p.next = (p.next + 1) % len(p.wallets)
	return w
}

// Count returns the current list size.
func (p *Provider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.wallets)
}

// Close stops the file watcher.
func (p *Provider) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func (p *Provider) watch() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("wallet watcher error", zap.Error(err))
		}
	}
}

// reload swaps in the new list; a broken or emptied file keeps the old
// one so the miner never loses its identities mid-session.
func (p *Provider) reload() {
	wallets, err := Load(p.path)
	if err != nil {
		p.logger.Warn("wallet reload failed, keeping current list", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.wallets = wallets
	p.next = p.next % len(wallets)
	p.mu.Unlock()
	p.logger.Info("wallet list reloaded", zap.Int("wallets", len(wallets)))
}
