// Package metrics collects request and iteration measurements during a load test.
//
// The central [Collector] type aggregates metrics from all virtual users:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	done := collector.TrackInFlight()
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{StatusCode: "200"})
//	done()
//	collector.RecordIteration(iterationTime, false)
//
//	stats := collector.Stats(collector.Elapsed())
//
// Latencies and iteration durations are kept in HDR histograms, so percentiles
// stay accurate without storing samples. All methods are safe for concurrent use.
package metrics
