package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/modbot/internal/store"
)

// ErrNoSnapshot is returned by a Backend that holds no snapshot yet.
var ErrNoSnapshot = errors.New("snapshot: none stored")

const finalSaveTimeout = 10 * time.Second

// Backend stores encoded snapshots, keeping a bounded number of previous
// revisions.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
}

type Source interface {
	Snapshot() store.Data
	Version() uint64
	Restore(d store.Data)
}

type Persister struct {
	backend  Backend
	source   Source
	interval time.Duration

	mu           sync.Mutex
	savedVersion uint64
}

func NewPersister(backend Backend, source Source, interval time.Duration) *Persister {
	return &Persister{backend: backend, source: source, interval: interval}
}

// Restore loads the latest snapshot into the source. A backend without
// any snapshot leaves the source empty.
func (p *Persister) Restore(ctx context.Context) error {
	raw, err := p.backend.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		slog.Info("no snapshot found; starting with empty state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	doc, err := Decode(raw)
	if err != nil {
		return err
	}
	p.source.Restore(doc.Data())

	p.mu.Lock()
	p.savedVersion = p.source.Version()
	p.mu.Unlock()
	slog.Info("snapshot restored", "reports", len(doc.Reports), "guilds", len(doc.Guilds))
	return nil
}

// Run saves on every tick when the source changed, and once more when ctx
// is done.
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
			defer cancel()
			if err := p.save(finalCtx, false); err != nil {
				slog.Error("final snapshot save failed", "error", err)
				return err
			}
			return nil
		case <-ticker.C:
			if err := p.save(ctx, false); err != nil {
				slog.Warn("periodic snapshot save failed", "error", err)
			}
		}
	}
}

// SaveNow writes a snapshot regardless of whether anything changed.
func (p *Persister) SaveNow(ctx context.Context) error {
	return p.save(ctx, true)
}

func (p *Persister) save(ctx context.Context, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	version := p.source.Version()
	if !force && version == p.savedVersion {
		return nil
	}
	raw, err := Encode(FromData(p.source.Snapshot()))
	if err != nil {
		return err
	}
	if err := p.backend.Save(ctx, raw); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	p.savedVersion = version
	slog.Debug("snapshot saved", "version", version, "bytes", len(raw))
	return nil
}
