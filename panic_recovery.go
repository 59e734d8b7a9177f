// panic_recovery.go: Standardized panic recovery utilities with stack trace support
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"runtime"
)

// withStackRecover returns a panic recovery function that logs panic
// details including the full stack trace. Event dispatch and other
// host-side goroutines defer it so a misbehaving handler cannot take the
// process down.
//
// Example usage:
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    // potentially panicking code
//	}()
//
// The returned function should be called with defer to ensure proper recovery.
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// SafeGo executes a function in a new goroutine with automatic panic recovery.
//
// Example usage:
//
//	SafeGo(logger, func() {
//	    // potentially panicking code
//	})
//
// If the function panics, the panic is logged and the goroutine terminates
// without crashing the host.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// safeCall invokes a plugin lifecycle hook and converts a panic into an
// error. Plugin code runs in-process, so this is the boundary that keeps
// a panicking plugin from crossing into the host.
func safeCall(pluginID, action string, logger Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in plugin hook",
				"plugin", pluginID,
				"action", action,
				"panic", r,
				"stack", string(buf[:n]))
			err = NewPluginPanicError(pluginID, action, r)
		}
	}()
	return fn()
}
