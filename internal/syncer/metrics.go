package syncer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SavesTotal     prometheus.Counter
	SaveErrors     prometheus.Counter
	ConflictsTotal prometheus.Counter
	ForksTotal     prometheus.Counter
	SkippedSaves   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			SavesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "easel_sync_saves_total",
				Help: "Total number of completed document saves",
			}),
			SaveErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "easel_sync_save_errors_total",
				Help: "Total number of failed probes or saves",
			}),
			ConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "easel_sync_conflicts_total",
				Help: "Total number of detected remote-modification conflicts",
			}),
			ForksTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "easel_sync_forks_total",
				Help: "Total number of conflict resolutions that forked a document",
			}),
			SkippedSaves: promauto.NewCounter(prometheus.CounterOpts{
				Name: "easel_sync_skipped_saves_total",
				Help: "Total number of saves skipped because the snapshot was unchanged",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) RecordSave() {
	if m == nil || m.SavesTotal == nil {
		return
	}
	m.SavesTotal.Inc()
}

func (m *Metrics) RecordSaveError() {
	if m == nil || m.SaveErrors == nil {
		return
	}
	m.SaveErrors.Inc()
}

func (m *Metrics) RecordConflict() {
	if m == nil || m.ConflictsTotal == nil {
		return
	}
	m.ConflictsTotal.Inc()
}

func (m *Metrics) RecordFork() {
	if m == nil || m.ForksTotal == nil {
		return
	}
	m.ForksTotal.Inc()
}

func (m *Metrics) RecordSkippedSave() {
	if m == nil || m.SkippedSaves == nil {
		return
	}
	m.SkippedSaves.Inc()
}
