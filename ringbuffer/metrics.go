package ringbuffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// streamMetrics mirrors the statistics as Prometheus collectors.
type streamMetrics struct {
	reg          prometheus.Registerer
	writes       prometheus.Counter
	rejected     prometheus.Counter
	overwritten  prometheus.Counter
	reads        prometheus.Counter
	emptyReads   prometheus.Counter
	lockTimeouts prometheus.Counter
	length       prometheus.Gauge
	utilization  prometheus.Gauge
}

func newStreamMetrics(reg prometheus.Registerer, namespace, name string) (*streamMetrics, error) {
	labels := prometheus.Labels{"stream": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "stream",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(metric, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "stream",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &streamMetrics{
		reg:          reg,
		writes:       counter("writes_total", "Samples accepted by the stream"),
		rejected:     counter("rejected_total", "Writes rejected because the stream was full"),
		overwritten:  counter("overwritten_total", "Samples evicted by overwriting writes"),
		reads:        counter("reads_total", "Samples delivered to readers"),
		emptyReads:   counter("empty_reads_total", "Reads that found the stream empty"),
		lockTimeouts: counter("lock_timeouts_total", "Operations abandoned after exhausting lock retries"),
		length:       gauge("length", "Samples currently held"),
		utilization:  gauge("utilization", "Length divided by capacity"),
	}

	registered := make([]prometheus.Collector, 0, len(m.collectors()))
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *streamMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.writes, m.rejected, m.overwritten, m.reads,
		m.emptyReads, m.lockTimeouts, m.length, m.utilization,
	}
}

func (m *streamMetrics) setLength(n, capacity int) {
	m.length.Set(float64(n))
	m.utilization.Set(float64(n) / float64(capacity))
}

func (m *streamMetrics) unregister() {
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
}
