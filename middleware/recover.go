// Package middleware collects concrete Middleware values for the engine's
// pipeline: recovery configuration, request logging, CORS, security
// headers, body size limiting, JWT authentication, gzip compression and
// response minification, in the teacher framework's own gas-by-gas style.
package middleware

import "github.com/ignishq/ignis"

// RecoverConfig tunes the engine's built-in panic recovery. Unlike the
// teacher framework's Recover gas, panic recovery here is not itself a
// pluggable chain stage: the flat Pre/Post chain has no way to wrap a later
// stage's call frame the way nested gas composition does, so the engine
// recovers centrally around every Pre and handler call. Recover only
// configures that built-in behavior.
type RecoverConfig struct {
	// StackSize bounds how much of the panicking goroutine's stack is
	// captured for the log line. Default 4KB.
	StackSize int

	// DisableStackAll omits every other goroutine's stack, keeping only
	// the panicking one.
	DisableStackAll bool
}

// DefaultRecoverConfig is used by Recover.
var DefaultRecoverConfig = RecoverConfig{StackSize: 4 << 10}

// Recover configures e's built-in panic recovery with DefaultRecoverConfig
// and returns a no-op Middleware that exists only so recovery configuration
// reads like every other pipeline stage in registration code.
func Recover(e *ignis.Engine) ignis.Middleware {
	return RecoverWithConfig(e, DefaultRecoverConfig)
}

// RecoverWithConfig configures e's built-in panic recovery from config. See
// Recover.
func RecoverWithConfig(e *ignis.Engine, config RecoverConfig) ignis.Middleware {
	if config.StackSize == 0 {
		config.StackSize = DefaultRecoverConfig.StackSize
	}

	e.Config.RecoverStackSize = config.StackSize
	e.Config.RecoverDisableStackAll = config.DisableStackAll

	return ignis.Middleware{Name: "recover", Priority: -1000}
}
