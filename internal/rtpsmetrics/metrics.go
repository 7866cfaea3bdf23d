// Package rtpsmetrics exposes Prometheus counters and gauges for a
// participant's data-plane and discovery activity, scraped over the
// /metrics endpoint the teacher's monitoring package serves.
package rtpsmetrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	samplesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_samples_written_total",
		Help: "Total samples added to a local datawriter's history cache",
	}, []string{"topic"})

	samplesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_samples_delivered_total",
		Help: "Total samples taken from a local datareader",
	}, []string{"topic"})

	samplesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_samples_rejected_total",
		Help: "Total samples refused by a local datawriter's history cache",
	}, []string{"topic", "reason"})

	discoveredParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_discovered_participants",
		Help: "Current number of remote participants with a live SPDP lease",
	})

	matchedWriters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_matched_writers",
		Help: "Current number of remote writer proxies matched across all local datareaders",
	})

	matchedReaders = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_matched_readers",
		Help: "Current number of remote reader proxies matched across all local datawriters",
	})

	heartbeatsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_heartbeats_sent_total",
		Help: "Total HEARTBEAT submessages sent by stateful writers",
	})

	acknacksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_acknacks_sent_total",
		Help: "Total ACKNACK submessages sent by stateful readers",
	})

	retransmitsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_retransmits_sent_total",
		Help: "Total DATA submessages resent in response to an ACKNACK request",
	})

	datagramsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_datagrams_received_total",
		Help: "Total UDP datagrams handed to the message receiver",
	})

	datagramsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_datagrams_malformed_total",
		Help: "Total datagrams that failed RTPS header or submessage decoding",
	})

	mailboxDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_mailbox_dropped_total",
		Help: "Total mailbox posts dropped because the actor's queue was full",
	})

	workerQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_worker_queue_dropped_total",
		Help: "Total SEDP matching tasks dropped because the worker pool queue was full or the in-flight limit was reached",
	})

	actorPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_actor_panics_total",
		Help: "Total panics recovered at the participant actor's mailbox boundary",
	})

	goroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_goroutines_active",
		Help: "Current number of active goroutines in the process",
	})

	cpuContainerPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_cpu_container_percent",
		Help: "CPU usage as a percentage of the cgroup-allocated share",
	})
)

func init() {
	prometheus.MustRegister(
		samplesWritten,
		samplesDelivered,
		samplesRejected,
		discoveredParticipants,
		matchedWriters,
		matchedReaders,
		heartbeatsSent,
		acknacksSent,
		retransmitsSent,
		datagramsReceived,
		datagramsMalformed,
		mailboxDropped,
		workerQueueDropped,
		actorPanics,
		goroutinesActive,
		cpuContainerPercent,
	)
}

func RecordSampleWritten(topic string)   { samplesWritten.WithLabelValues(topic).Inc() }
func RecordSampleDelivered(topic string) { samplesDelivered.WithLabelValues(topic).Inc() }

func RecordSampleRejected(topic, reason string) {
	samplesRejected.WithLabelValues(topic, reason).Inc()
}

func SetDiscoveredParticipants(n int) { discoveredParticipants.Set(float64(n)) }
func SetMatchedWriters(n int)         { matchedWriters.Set(float64(n)) }
func SetMatchedReaders(n int)         { matchedReaders.Set(float64(n)) }

func IncHeartbeatsSent()   { heartbeatsSent.Inc() }
func IncAckNacksSent()     { acknacksSent.Inc() }
func IncRetransmitsSent()  { retransmitsSent.Inc() }
func IncDatagramsReceived() { datagramsReceived.Inc() }
func IncDatagramsMalformed() { datagramsMalformed.Inc() }
func IncMailboxDropped()    { mailboxDropped.Inc() }
func IncWorkerQueueDropped() { workerQueueDropped.Inc() }
func IncActorPanics()       { actorPanics.Inc() }

// SampleRuntime refreshes the process-wide gauges; limits.ResourceGuard
// calls it on its CPU sample interval.
func SampleRuntime(cpuContainerPct float64) {
	goroutinesActive.Set(float64(runtime.NumGoroutine()))
	cpuContainerPercent.Set(cpuContainerPct)
}

// Handler serves the Prometheus exposition format for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
