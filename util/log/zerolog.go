// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package waLog

import (
	"github.com/rs/zerolog"
)

type zeroLogger struct {
	mod string
	zerolog.Logger
}

// Zerolog wraps a [zerolog.Logger] to implement the [Logger] interface.
//
// Subloggers will be created by adding the `sublogger` field to the log context.
func Zerolog(log zerolog.Logger) Logger {
	return &zeroLogger{Logger: log}
}

func (z *zeroLogger) Warnf(msg string, args ...interface{})  { z.Warn().Msgf(msg, args...) }
func (z *zeroLogger) Errorf(msg string, args ...interface{}) { z.Error().Msgf(msg, args...) }
func (z *zeroLogger) Infof(msg string, args ...interface{})  { z.Info().Msgf(msg, args...) }
func (z *zeroLogger) Debugf(msg string, args ...interface{}) { z.Debug().Msgf(msg, args...) }
func (z *zeroLogger) Sub(module string) Logger {
	if z.mod != "" {
		module = z.mod + "/" + module
	}
	return &zeroLogger{mod: module, Logger: z.Logger.With().Str("sublogger", module).Logger()}
}

var _ Logger = &zeroLogger{}
