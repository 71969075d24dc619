// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels of the messages counter.
const (
	MessageQueued   = "queued"
	MessageTooLarge = "too_large"
	MessageFailed   = "failed"
)

var (
	// Sessions counts accepted smtp connections.
	Sessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefrelay_sessions_total",
			Help: "Incoming smtp sessions.",
		},
	)

	// Messages counts the outcome of DATA, labeled by result.
	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefrelay_messages_total",
			Help: "Messages received at the end of DATA.",
		},
		[]string{
			"result", // "queued", "too_large", "failed"
		},
	)

	// Deliveries counts finished delivery attempts by their final state.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefrelay_deliveries_total",
			Help: "Finished delivery attempts, one per forward target.",
		},
		[]string{
			"state", // "delivered", "failed"
		},
	)

	// DeliveryDuration observes how long each attempt took.
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "briefrelay_delivery_duration_seconds",
			Help:    "Duration of a delivery attempt including mx lookup.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 20, 30, 60, 120},
		},
	)
)
