package reload

import (
	"context"
	"time"

	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// DefaultPollInterval applies when Poller is given no interval
const DefaultPollInterval = 5 * time.Minute

// Poller re-fetches a rule source on an interval and swaps it in when its
// digest changes. Used for remote rule sets, which cannot be watched.
type Poller struct {
	src      rules.Source
	target   Target
	interval time.Duration
	log      *logger.Logger

	// OnReload is called after each swap attempt, if set
	OnReload func(err error)
}

// NewPoller creates a poller for src
func NewPoller(src rules.Source, target Target, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		src:      src,
		target:   target,
		interval: interval,
		log:      log.WithComponent("reload"),
	}
}

// Run polls until ctx is canceled
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Msg("polling rule set")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll checks the source once. It reports whether a new catalog was swapped in.
func (p *Poller) Poll() bool {
	catalog, err := rules.LoadCatalog(p.src)
	if err != nil {
		p.log.Error().Err(err).Msg("poll failed, keeping current rule set")
		return false
	}
	if catalog.Digest() == p.target.Snapshot().Catalog.Digest() {
		return false
	}

	err = p.target.ReloadCatalog(loaded{catalog})
	if p.OnReload != nil {
		p.OnReload(err)
	}
	return err == nil
}

// loaded hands an already parsed catalog to the engine
type loaded struct {
	catalog *rules.Catalog
}

func (l loaded) Load() (*rules.Catalog, error) {
	return l.catalog, nil
}
