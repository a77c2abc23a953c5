// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	tierMemory  = "memory"
	tierDurable = "durable"
)

// Prometheus metrics for cache behavior.
var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_cache_hits_total",
		Help: "Cache hits by tier",
	}, []string{"tier"})

	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_cache_misses_total",
		Help: "Cache reads where neither tier held the key",
	})

	staleReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_cache_stale_reads_total",
		Help: "Cache hits served past their TTL",
	})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_cache_evictions_total",
		Help: "Durable tier entries evicted by age",
	})

	writeDowngradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_cache_write_downgrades_total",
		Help: "Writes degraded to memory-only after durable failures",
	})
)
