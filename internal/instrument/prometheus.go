// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !noprometheus

// Package instrument exposes counters over the node's delivery
// machinery.  Build with the noprometheus tag to compile all of it
// away.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	packetsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_packets_sent_total",
			Help: "Number of packets handed to neighbor channels",
		},
	)
	packetsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_packets_received_total",
			Help: "Number of packets taken off the ingress channel",
		},
	)
	packetsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_packets_dropped_total",
			Help: "Number of inbound packets dropped due to processing errors",
		},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_messages_received_total",
			Help: "Number of fully reassembled inbound messages",
		},
	)
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_messages_sent_total",
			Help: "Number of fully acknowledged outbound messages",
		},
	)
	messagesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_messages_failed_total",
			Help: "Number of outbound messages abandoned after repeated negative acknowledgements",
		},
	)
	floodsInitiated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_floods_initiated_total",
			Help: "Number of topology discovery floods initiated",
		},
	)
	retransmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backend_retransmissions_total",
			Help: "Number of negative acknowledgement driven fragment retransmissions",
		},
	)

	initOnce sync.Once
)

// Init registers the collectors.  Safe to call once per node in a
// multi node process.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(packetsSent)
		prometheus.MustRegister(packetsReceived)
		prometheus.MustRegister(packetsDropped)
		prometheus.MustRegister(messagesReceived)
		prometheus.MustRegister(messagesSent)
		prometheus.MustRegister(messagesFailed)
		prometheus.MustRegister(floodsInitiated)
		prometheus.MustRegister(retransmissions)
	})
}

// StartMetricsListener exposes the registered metrics via HTTP on addr.
func StartMetricsListener(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, nil)
}

// PacketsSent increments the counter for packets handed to neighbors.
func PacketsSent() {
	packetsSent.Inc()
}

// PacketsReceived increments the counter for inbound packets.
func PacketsReceived() {
	packetsReceived.Inc()
}

// PacketsDropped increments the counter for dropped inbound packets.
func PacketsDropped() {
	packetsDropped.Inc()
}

// MessagesReceived increments the counter for reassembled messages.
func MessagesReceived() {
	messagesReceived.Inc()
}

// MessagesSent increments the counter for fully acknowledged messages.
func MessagesSent() {
	messagesSent.Inc()
}

// MessagesFailed increments the counter for abandoned messages.
func MessagesFailed() {
	messagesFailed.Inc()
}

// FloodsInitiated increments the counter for initiated floods.
func FloodsInitiated() {
	floodsInitiated.Inc()
}

// Retransmissions increments the counter for fragment retransmissions.
func Retransmissions() {
	retransmissions.Inc()
}
