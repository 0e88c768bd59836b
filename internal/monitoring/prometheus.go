package monitoring

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"
)

// Collector exposes a Counters set to Prometheus. Values are read at scrape
// time, so the decode path never touches the Prometheus client.
type Collector struct {
	counters *Counters

	blocksRead           *prometheus.Desc
	burstsDetected       *prometheus.Desc
	carryOverflows       *prometheus.Desc
	demodUnderruns       *prometheus.Desc
	framesAccepted       *prometheus.Desc
	framesRejected       *prometheus.Desc
	duplicatesSuppressed *prometheus.Desc
	recordsPublished     *prometheus.Desc
	channelDrops         *prometheus.Desc
	sinkErrors           *prometheus.Desc
	rejectionRate        *prometheus.Desc
}

// NewCollector builds a Collector labelled with the given receiver name.
func NewCollector(counters *Counters, receiver string) *Collector {
	constLabels := prometheus.Labels{"receiver": receiver}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("modes_"+name, help, labels, constLabels)
	}
	return &Collector{
		counters:             counters,
		blocksRead:           desc("blocks_read_total", "Sample blocks read from devices"),
		burstsDetected:       desc("bursts_detected_total", "Preamble candidates accepted as bursts"),
		carryOverflows:       desc("carry_overflows_total", "Partial bursts dropped at a block boundary"),
		demodUnderruns:       desc("demod_underruns_total", "Bursts too short to demodulate"),
		framesAccepted:       desc("frames_accepted_total", "Frames that passed the integrity check", "integrity"),
		framesRejected:       desc("frames_rejected_total", "Frames dropped by the integrity check", "reason"),
		duplicatesSuppressed: desc("duplicates_suppressed_total", "Frames suppressed as duplicates"),
		recordsPublished:     desc("records_published_total", "Records handed to the outbound channel"),
		channelDrops:         desc("channel_drops_total", "Records evicted from a full outbound channel"),
		sinkErrors:           desc("sink_errors_total", "Records a sink failed to accept"),
		rejectionRate:        desc("rejection_rate", "Rolling fraction of rejected frames"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.blocksRead, c.burstsDetected, c.carryOverflows, c.demodUnderruns,
		c.framesAccepted, c.framesRejected, c.duplicatesSuppressed,
		c.recordsPublished, c.channelDrops, c.sinkErrors, c.rejectionRate,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.counters.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.blocksRead, s.BlocksRead)
	counter(c.burstsDetected, s.BurstsDetected)
	counter(c.carryOverflows, s.CarryOverflows)
	counter(c.demodUnderruns, s.DemodUnderruns)
	counter(c.framesAccepted, s.FramesValid, "valid")
	counter(c.framesAccepted, s.FramesCorrected, "corrected")
	for reason, n := range s.RejectReasons {
		counter(c.framesRejected, n, reason)
	}
	counter(c.duplicatesSuppressed, s.DuplicatesSuppressed)
	counter(c.recordsPublished, s.RecordsPublished)
	counter(c.channelDrops, s.ChannelDrops)
	counter(c.sinkErrors, s.SinkErrors)
	ch <- prometheus.MustNewConstMetric(c.rejectionRate, prometheus.GaugeValue, s.RejectionRate)
}

// Handler returns a /metrics handler serving only this receiver's registry.
func (c *Collector) Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// AttachAdminRoutes mounts the metrics endpoint on mux and a JSON counter
// snapshot under the /debug/ pages. The debug routes are accessible only
// over localhost/via Tailscale.
func (c *Collector) AttachAdminRoutes(mux *http.ServeMux) error {
	h, err := c.Handler()
	if err != nil {
		return err
	}
	mux.Handle("/metrics", h)

	debug := tsweb.Debugger(mux)
	debug.Handle("modes", "Decoder counters", http.HandlerFunc(c.serveSnapshot))
	return nil
}

func (c *Collector) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.counters.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
