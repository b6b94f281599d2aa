// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger = nil
)

const MaxLogLevel = logrus.TraceLevel

func init() {
	logger = logrus.New()
}

// SetLogger replaces the logger used by the library. Register accesses
// are logged at debug level, raw packets at trace level.
func SetLogger(loggerInstance *logrus.Logger) {
	if loggerInstance == nil {
		return
	}

	logger = loggerInstance
}
