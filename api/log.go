// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

var arg0 = filepath.Base(os.Args[0])

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	logger.Store(zap.NewNop().Sugar())
}

// SetLogger installs l as the logger used by api and its subpackages.
func SetLogger(l *zap.Logger) {
	logger.Store(l.Sugar())
}

// Logger returns the logger installed with SetLogger, or a no-op logger.
func Logger() *zap.SugaredLogger {
	return logger.Load()
}

func logf(format string, args ...interface{}) {
	Logger().Infof(arg0+" * "+format, args...)
}

func debugf(format string, args ...interface{}) {
	Logger().Debugf(arg0+" * "+format, args...)
}

func errorf(format string, args ...interface{}) {
	Logger().Errorf(arg0+" * error: "+format, args...)
}
