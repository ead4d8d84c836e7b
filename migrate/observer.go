package migrate

import (
	"time"

	"go.uber.org/zap"
)

// PassInfo identifies one run of a chain.
type PassInfo struct {
	RunID    string
	Chain    string
	Versions int
}

// Observer receives progress events of a migration pass. Implementations
// must be safe for concurrent passes.
type Observer interface {
	PassStarted(pass PassInfo)
	SourceStarted(pass PassInfo, table string)
	SourceFinished(pass PassInfo, source, target string, rows int)
	TableCleared(pass PassInfo, table string)
	PassFinished(pass PassInfo, err error, elapsed time.Duration)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) PassStarted(PassInfo)                         {}
func (NopObserver) SourceStarted(PassInfo, string)               {}
func (NopObserver) SourceFinished(PassInfo, string, string, int) {}
func (NopObserver) TableCleared(PassInfo, string)                {}
func (NopObserver) PassFinished(PassInfo, error, time.Duration)  {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		switch o := o.(type) {
		case nil, NopObserver:
		case multiObserver:
			m = append(m, o...)
		default:
			m = append(m, o)
		}
	}
	if len(m) == 0 {
		return NopObserver{}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiObserver) PassStarted(p PassInfo) {
	for _, o := range m {
		o.PassStarted(p)
	}
}

func (m multiObserver) SourceStarted(p PassInfo, table string) {
	for _, o := range m {
		o.SourceStarted(p, table)
	}
}

func (m multiObserver) SourceFinished(p PassInfo, source, target string, rows int) {
	for _, o := range m {
		o.SourceFinished(p, source, target, rows)
	}
}

func (m multiObserver) TableCleared(p PassInfo, table string) {
	for _, o := range m {
		o.TableCleared(p, table)
	}
}

func (m multiObserver) PassFinished(p PassInfo, err error, elapsed time.Duration) {
	for _, o := range m {
		o.PassFinished(p, err, elapsed)
	}
}

// LogObserver writes pass progress to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger.With(zap.String("component", "migrate"))}
}

func (l *LogObserver) with(p PassInfo) *zap.Logger {
	return l.logger.With(zap.String("run_id", p.RunID), zap.String("chain", p.Chain))
}

func (l *LogObserver) PassStarted(p PassInfo) {
	l.with(p).Info("migrating versions", zap.Int("versions", p.Versions))
}

func (l *LogObserver) SourceStarted(p PassInfo, table string) {
	l.with(p).Debug("checking table", zap.String("table", table))
}

func (l *LogObserver) SourceFinished(p PassInfo, source, target string, rows int) {
	l.with(p).Info("migrated entries",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int("rows", rows),
	)
}

func (l *LogObserver) TableCleared(p PassInfo, table string) {
	l.with(p).Info("cleared previous table", zap.String("table", table))
}

func (l *LogObserver) PassFinished(p PassInfo, err error, elapsed time.Duration) {
	if err != nil {
		l.with(p).Error("migration failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return
	}
	l.with(p).Info("migration completed", zap.Duration("elapsed", elapsed))
}
