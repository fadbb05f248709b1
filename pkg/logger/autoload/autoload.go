// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of being imported.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/natpat/caz/pkg/logger"
)

func init() {
	var conf logx.Config
	// A malformed LOG_* variable falls back to the defaults rather than
	// aborting startup.
	_ = envconfig.Process("LOG", &conf)
	logx.Init(conf)
}
