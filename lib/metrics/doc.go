// Package metrics collects the counters of a dSync process.
//
// Two kinds of instruments are kept. Prometheus counters and histograms
// (github.com/VictoriaMetrics/metrics) are scraped from the metrics endpoint of nodes
// and the relay. In-process meters and timers (github.com/rcrowley/go-metrics) describe
// recent behaviour of one node, such as flush batch sizes or request round trips, and
// are returned by the "metrics" fact so an operator can ask every node at once over
// the bus without a scrape setup.
package metrics
