// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metrics exposes reftable Writer, Reader, and Compactor
// statistics as Prometheus collectors (SPEC_FULL.md §5).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reftable-go/reftable/compact"
	"github.com/reftable-go/reftable/table"
)

// Collector publishes counters and gauges for one table's lifecycle:
// the Writer stats produced at Finish, and the running ReaderStats of any
// readers opened against it.
type Collector struct {
	writeRecords *prometheus.GaugeVec
	writeBlocks  *prometheus.GaugeVec
	writeBytes   *prometheus.GaugeVec
	indexLevels  *prometheus.GaugeVec

	readBlocks  prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	compactInputRefs   prometheus.Counter
	compactOutputRefs  prometheus.Counter
	compactInputLogs   prometheus.Counter
	compactOutputLogs  prometheus.Counter
}

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		writeRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reftable", Subsystem: "writer", Name: "records",
			Help: "Records written to the most recent table, by section.",
		}, []string{"section"}),
		writeBlocks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reftable", Subsystem: "writer", Name: "blocks",
			Help: "Leaf blocks written to the most recent table, by section.",
		}, []string{"section"}),
		writeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reftable", Subsystem: "writer", Name: "bytes",
			Help: "Bytes written to the most recent table, by section.",
		}, []string{"section"}),
		indexLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reftable", Subsystem: "writer", Name: "index_levels",
			Help: "Index pyramid depth of the most recent table, by section.",
		}, []string{"section"}),
		readBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "reader", Name: "blocks_read_total",
			Help: "Blocks read from block sources across all readers.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "reader", Name: "cache_hits_total",
			Help: "Block cache hits across all readers.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "reader", Name: "cache_misses_total",
			Help: "Block cache misses across all readers.",
		}),
		compactInputRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "compactor", Name: "input_refs_total",
			Help: "Ref records observed by the compactor across all runs.",
		}),
		compactOutputRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "compactor", Name: "output_refs_total",
			Help: "Ref records written by the compactor across all runs.",
		}),
		compactInputLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "compactor", Name: "input_logs_total",
			Help: "Log records observed by the compactor across all runs.",
		}),
		compactOutputLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reftable", Subsystem: "compactor", Name: "output_logs_total",
			Help: "Log records written by the compactor across all runs.",
		}),
	}
	reg.MustRegister(
		c.writeRecords, c.writeBlocks, c.writeBytes, c.indexLevels,
		c.readBlocks, c.cacheHits, c.cacheMisses,
		c.compactInputRefs, c.compactOutputRefs, c.compactInputLogs, c.compactOutputLogs,
	)
	return c
}

// ObserveWrite records one Writer.Finish result.
func (c *Collector) ObserveWrite(s table.WriterStats) {
	c.writeRecords.WithLabelValues("ref").Set(float64(s.RefCount))
	c.writeRecords.WithLabelValues("obj").Set(float64(s.ObjCount))
	c.writeRecords.WithLabelValues("log").Set(float64(s.LogCount))
	c.writeBlocks.WithLabelValues("ref").Set(float64(s.RefBlocks))
	c.writeBlocks.WithLabelValues("obj").Set(float64(s.ObjBlocks))
	c.writeBlocks.WithLabelValues("log").Set(float64(s.LogBlocks))
	c.writeBytes.WithLabelValues("ref").Set(float64(s.RefBytes))
	c.writeBytes.WithLabelValues("obj").Set(float64(s.ObjBytes))
	c.writeBytes.WithLabelValues("log").Set(float64(s.LogBytes))
	c.indexLevels.WithLabelValues("ref").Set(float64(s.RefIndexLevels))
	c.indexLevels.WithLabelValues("obj").Set(float64(s.ObjIndexLevels))
	c.indexLevels.WithLabelValues("log").Set(float64(s.LogIndexLevels))
}

// ObserveRead accumulates one reader's running stats. Call once when a
// reader is closed; stats are cumulative counters, not gauges, because a
// reader's lifetime read volume only grows.
func (c *Collector) ObserveRead(s *table.ReaderStats) {
	c.readBlocks.Add(float64(s.BlocksRead))
	c.cacheHits.Add(float64(s.CacheHits))
	c.cacheMisses.Add(float64(s.CacheMisses))
}

// ObserveCompact accumulates one compaction run's stats.
func (c *Collector) ObserveCompact(s compact.Stats) {
	c.compactInputRefs.Add(float64(s.InputRefs))
	c.compactOutputRefs.Add(float64(s.OutputRefs))
	c.compactInputLogs.Add(float64(s.InputLogs))
	c.compactOutputLogs.Add(float64(s.OutputLogs))
}
