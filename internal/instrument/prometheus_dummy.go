// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

//go:build noprometheus

package instrument

// Init does nothing.
func Init() {}

// StartMetricsListener does nothing.
func StartMetricsListener(addr string) {}

// PacketsSent does nothing.
func PacketsSent() {}

// PacketsReceived does nothing.
func PacketsReceived() {}

// PacketsDropped does nothing.
func PacketsDropped() {}

// MessagesReceived does nothing.
func MessagesReceived() {}

// MessagesSent does nothing.
func MessagesSent() {}

// MessagesFailed does nothing.
func MessagesFailed() {}

// FloodsInitiated does nothing.
func FloodsInitiated() {}

// Retransmissions does nothing.
func Retransmissions() {}
