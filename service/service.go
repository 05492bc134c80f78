// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package service assembles a node from its configuration and channel
// wiring and supervises its lifecycle.
package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/jarkko793/backend/config"
	"github.com/jarkko793/backend/controller"
	"github.com/jarkko793/backend/core/log"
	"github.com/jarkko793/backend/internal/instrument"
	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/router"
	"github.com/jarkko793/backend/spool"
	"github.com/jarkko793/backend/spool/boltspool"
	"github.com/jarkko793/backend/wire"
)

// Options carries the channel wiring that attaches a node to the rest of
// the simulation.  The supervisor owns the channels; the node only ever
// reads from the receive ends and writes to the send ends it is handed.
type Options struct {
	// NodeID is the identifier of this node.
	NodeID wire.NodeID

	// Neighbors maps each directly connected node to the channel that
	// delivers packets to it.
	Neighbors map[wire.NodeID]chan<- wire.Packet

	// Ingress delivers packets addressed to this node.
	Ingress <-chan wire.Packet

	// Control delivers supervisor commands.
	Control <-chan controller.Command

	// API delivers application commands.
	API <-chan router.Command

	// Events receives the node's observer events.
	Events chan<- controller.Event

	// EdgeNodes receives answers to edge node queries.
	EdgeNodes chan<- []wire.Vertex

	// Unread receives answers to unread message queries.
	Unread chan<- []message.Message
}

func (o *Options) validate() error {
	if o == nil {
		return errors.New("service: no options block was present")
	}
	if _, ok := o.Neighbors[o.NodeID]; ok {
		return fmt.Errorf("service: node %d lists itself as a neighbor", o.NodeID)
	}
	if n := len(o.Neighbors); n < 1 || n > 2 {
		return fmt.Errorf("service: %d neighbors connected when there must be 1 or 2", n)
	}
	return nil
}

// Service is a running node instance.
type Service struct {
	cfg  *config.Config
	opts *Options

	logBackend *log.Backend
	log        *logging.Logger

	router  *router.Router
	archive spool.Archive

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

// New validates the wiring, brings up logging, the delivery archive and
// the metrics listener, and starts the node's routing engine.
func New(cfg *config.Config, opts *Options) (*Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := new(Service)
	s.cfg = cfg
	s.opts = opts
	s.fatalErrCh = make(chan error)
	s.haltedCh = make(chan interface{})

	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Noticef("Starting node %d with %d neighbors.", opts.NodeID, len(opts.Neighbors))
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Debug logging is enabled.")
	}

	if cfg.Archive.Enable {
		a, err := boltspool.New(cfg.Archive.File)
		if err != nil {
			return nil, fmt.Errorf("service: failed to open archive: %v", err)
		}
		s.archive = a
	} else {
		s.archive = spool.NewNopArchive()
	}

	if !cfg.Metrics.Disable {
		instrument.Init()
		instrument.StartMetricsListener(cfg.Metrics.Address)
	}

	r, err := router.New(&router.Config{
		LogBackend:        s.logBackend,
		NodeID:            opts.NodeID,
		Ingress:           opts.Ingress,
		Control:           opts.Control,
		API:               opts.API,
		Neighbors:         opts.Neighbors,
		Events:            opts.Events,
		EdgeNodes:         opts.EdgeNodes,
		Unread:            opts.Unread,
		Archive:           s.archive,
		MaxResendAttempts: cfg.Debug.MaxResendAttempts,
	})
	if err != nil {
		s.archive.Close()
		return nil, err
	}
	s.router = r

	// Start the fatal error watcher.  It runs as a plain goroutine because
	// it calls Shutdown(), which blocks until the routing engine has
	// returned.
	go s.fatalErr()
	return s, nil
}

func (s *Service) initLogging() error {
	f := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && f != "" {
		if !filepath.IsAbs(f) {
			return errors.New("service: log file path must be absolute path")
		}
	}

	var err error
	s.logBackend, err = log.New(f, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger(fmt.Sprintf("service:%d", s.opts.NodeID))
	}
	return err
}

func (s *Service) fatalErr() {
	select {
	case <-s.haltedCh:
	case err, ok := <-s.fatalErrCh:
		if ok {
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		}
	}
}

// GetLogger returns a new logger with the given name that writes to the
// node's log backend.
func (s *Service) GetLogger(name string) *logging.Logger {
	return s.logBackend.GetLogger(name)
}

// RotateLog reopens the log file if logging to a file is enabled.
func (s *Service) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		s.fatalErrCh <- fmt.Errorf("service: failed to rotate log file: %v", err)
	}
}

// Shutdown cleanly shuts down a given Service instance.
func (s *Service) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

// Wait waits till the service is terminated for any reason.
func (s *Service) Wait() {
	<-s.haltedCh
}

func (s *Service) halt() {
	s.log.Noticef("Starting graceful shutdown.")
	s.router.Halt()
	s.archive.Close()
	close(s.fatalErrCh)
	s.log.Noticef("Shutdown complete.")
	close(s.haltedCh)
}
