// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import log "github.com/sirupsen/logrus"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию, которую отдаёт /healthz.
func GetVersion() string { return version }

// Fields возвращает сведения о сборке для стартового лога.
func Fields() log.Fields {
	return log.Fields{
		"version": version,
		"commit":  commit,
		"built":   date,
	}
}
