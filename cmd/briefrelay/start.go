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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lukasdietrich/briefrelay/internal/delivery"
	"github.com/lukasdietrich/briefrelay/internal/log"
	"github.com/lukasdietrich/briefrelay/internal/metrics"
	"github.com/lukasdietrich/briefrelay/internal/smtp"
)

type startCommand struct {
	Server  *smtp.Server
	Metrics *metrics.Server
	Courier *delivery.Courier
	Options delivery.Options
}

func (s *startCommand) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)

	go serve(errs, s.Server.ListenAndServe)
	go serve(errs, s.Metrics.ListenAndServe)

	var err error

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
	case err = <-errs:
		log.Error().Err(err).Msg("server stopped unexpectedly, shutting down")
	}

	s.shutdown()
	return err
}

func serve(errs chan<- error, fn func() error) {
	if err := fn(); err != nil {
		errs <- err
	}
}

// shutdown stops accepting mail and waits for dispatched deliveries. Attempts
// still running after the delivery timeout are canceled.
func (s *startCommand) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Options.Timeout)
	defer cancel()

	if err := s.Server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("could not shut down smtp server")
	}

	if err := s.Metrics.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("could not shut down metrics server")
	}

	done := make(chan struct{})

	go func() {
		s.Courier.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all deliveries finished")
	case <-ctx.Done():
		log.Warn().Msg("canceling unfinished deliveries")
		s.Courier.Close()
	}
}
