// Package prometheus exports a conveyor.Conveyor's monotonic counters as a
// direct prometheus.Collector, grounded on the registration shape of
// pkg/observability/prometheus/metrics.go but collecting on demand from the
// Conveyor's own Stats() snapshot rather than mirroring state into a
// separate set of promauto-managed metrics — the Conveyor already keeps the
// authoritative counters, so Collect just reads them.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/conveyorio/conveyor/conveyor"
)

// StatsSource is the subset of *conveyor.Conveyor the collector depends on,
// so tests can supply a fake without standing up a real backend.
type StatsSource interface {
	Stats() conveyor.Stats
	Len() (writeLen, readLen int)
	Cap() (writeCap, readCap int)
}

// Collector implements prometheus.Collector over one Conveyor instance.
type Collector struct {
	instance string
	source   StatsSource

	bytesWritten      *prometheus.Desc
	bytesRead         *prometheus.Desc
	shortWrites       *prometheus.Desc
	shortWriteLost    *prometheus.Desc
	growthEvents      *prometheus.Desc
	stickyErrorActive *prometheus.Desc
	avgWriteLatencyMs *prometheus.Desc
	avgReadLatencyMs  *prometheus.Desc
	writeRingLen      *prometheus.Desc
	readRingLen       *prometheus.Desc
	writeRingCap      *prometheus.Desc
	readRingCap       *prometheus.Desc
}

// NewCollector builds a Collector labeled with instance (typically
// c.ID().String()).
func NewCollector(instance string, source StatsSource) *Collector {
	labels := []string{"instance"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("conveyor_"+name, help, labels, nil)
	}
	return &Collector{
		instance:          instance,
		source:            source,
		bytesWritten:      desc("bytes_written_total", "Total bytes accepted by Write and eventually flushed."),
		bytesRead:         desc("bytes_read_total", "Total bytes fetched from the backend by the prefetcher."),
		shortWrites:       desc("short_writes_total", "Total flush cycles where the backend wrote fewer bytes than requested."),
		shortWriteLost:    desc("short_write_bytes_lost_total", "Total bytes dropped from the write ring due to short writes."),
		growthEvents:      desc("ring_growth_events_total", "Total adaptive ring growth events, both directions combined."),
		stickyErrorActive: desc("sticky_error_active", "1 if a sticky backend error is currently latched on this instance, else 0."),
		avgWriteLatencyMs: desc("avg_write_latency_ms", "Average backend write latency in milliseconds, computed over all flushes so far."),
		avgReadLatencyMs:  desc("avg_read_latency_ms", "Average backend read latency in milliseconds, computed over all prefetches so far."),
		writeRingLen:      desc("write_ring_len_bytes", "Current unflushed byte count in the write ring."),
		readRingLen:       desc("read_ring_len_bytes", "Current buffered byte count in the read ring."),
		writeRingCap:      desc("write_ring_capacity_bytes", "Current write ring capacity."),
		readRingCap:       desc("read_ring_capacity_bytes", "Current read ring capacity."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesWritten
	ch <- c.bytesRead
	ch <- c.shortWrites
	ch <- c.shortWriteLost
	ch <- c.growthEvents
	ch <- c.stickyErrorActive
	ch <- c.avgWriteLatencyMs
	ch <- c.avgReadLatencyMs
	ch <- c.writeRingLen
	ch <- c.readRingLen
	ch <- c.writeRingCap
	ch <- c.readRingCap
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	writeLen, readLen := c.source.Len()
	writeCap, readCap := c.source.Cap()

	stickyActive := 0.0
	if st.LastErrorCode != "" {
		stickyActive = 1.0
	}

	emit := func(desc *prometheus.Desc, valType prometheus.ValueType, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, valType, v, c.instance)
	}

	emit(c.bytesWritten, prometheus.CounterValue, float64(st.BytesWritten))
	emit(c.bytesRead, prometheus.CounterValue, float64(st.BytesRead))
	emit(c.shortWrites, prometheus.CounterValue, float64(st.ShortWrites))
	emit(c.shortWriteLost, prometheus.CounterValue, float64(st.ShortWriteBytesLost))
	emit(c.growthEvents, prometheus.CounterValue, float64(st.GrowthEvents))
	emit(c.stickyErrorActive, prometheus.GaugeValue, stickyActive)
	emit(c.avgWriteLatencyMs, prometheus.GaugeValue, st.AvgWriteLatencyMs)
	emit(c.avgReadLatencyMs, prometheus.GaugeValue, st.AvgReadLatencyMs)
	emit(c.writeRingLen, prometheus.GaugeValue, float64(writeLen))
	emit(c.readRingLen, prometheus.GaugeValue, float64(readLen))
	emit(c.writeRingCap, prometheus.GaugeValue, float64(writeCap))
	emit(c.readRingCap, prometheus.GaugeValue, float64(readCap))
}

var _ prometheus.Collector = (*Collector)(nil)
