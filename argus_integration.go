// argus_integration.go: Argus integration for security audit and trust hot-reload
//
// Two pieces of the runtime lean on Argus. The audit trail records
// security-relevant events (bundle rejections, trust rotations, plugin
// removals) to a tamper-evident audit file. The security watcher watches
// a trust configuration file and rotates the validator's expected
// certificate and trusted keys without restarting the host, so a
// compromised signing certificate can be cut off while plugins keep
// running.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-timecache"
)

// AuditTrailConfig configures the security audit trail.
type AuditTrailConfig struct {
	// Enabled turns the audit trail on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// OutputFile is the audit log destination. Required when enabled.
	OutputFile string `json:"output_file,omitempty" yaml:"output_file,omitempty"`

	// BufferSize is the audit event buffer. Defaults to 1000.
	BufferSize int `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`

	// FlushInterval is how often buffered events are flushed. Defaults
	// to 5 seconds.
	FlushInterval time.Duration `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
}

func (c *AuditTrailConfig) setDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = 1000
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 5 * time.Second
	}
}

// AuditTrail records security events through the Argus audit system.
//
// A nil *AuditTrail is a valid disabled trail: every method is nil-safe,
// so call sites never need to branch on whether auditing is configured.
type AuditTrail struct {
	auditLogger *argus.AuditLogger
	logger      Logger
	events      atomic.Int64
}

// NewAuditTrail opens the audit trail described by cfg. Returns nil (and
// no error) when the trail is disabled or has no output file.
func NewAuditTrail(cfg AuditTrailConfig, logger any) (*AuditTrail, error) {
	if !cfg.Enabled || cfg.OutputFile == "" {
		return nil, nil
	}
	cfg.setDefaults()
	internalLogger := NewLogger(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o750); err != nil {
		return nil, NewAuditError("failed to create audit directory", err)
	}

	auditConfig := argus.AuditConfig{
		Enabled:       true,
		OutputFile:    cfg.OutputFile,
		MinLevel:      argus.AuditInfo,
		BufferSize:    cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
		IncludeStack:  false,
	}
	auditLogger, err := argus.NewAuditLogger(auditConfig)
	if err != nil {
		return nil, NewAuditError("failed to create audit logger", err)
	}

	internalLogger.Info("Security audit trail configured", "file", cfg.OutputFile)
	return &AuditTrail{
		auditLogger: auditLogger,
		logger:      internalLogger,
	}, nil
}

// RecordSecurityEvent writes one security event to the audit trail.
// Safe to call on a nil trail.
func (a *AuditTrail) RecordSecurityEvent(eventType, message string, context map[string]interface{}) {
	if a == nil || a.auditLogger == nil {
		return
	}
	a.events.Add(1)

	if context == nil {
		context = make(map[string]interface{})
	}
	context["component"] = "plugin_host"
	context["timestamp"] = timecache.CachedTime().Format(time.RFC3339)

	a.auditLogger.LogSecurityEvent(eventType, message, context)
}

// Events returns how many events this trail has recorded.
func (a *AuditTrail) Events() int64 {
	if a == nil {
		return 0
	}
	return a.events.Load()
}

// Close flushes and closes the audit trail. Safe to call on a nil trail.
func (a *AuditTrail) Close() error {
	if a == nil || a.auditLogger == nil {
		return nil
	}
	return a.auditLogger.Close()
}

// SecurityWatcherStats is a snapshot of trust-watching activity.
type SecurityWatcherStats struct {
	Reloads int64 `json:"reloads"`
	Errors  int64 `json:"errors"`
}

// SecurityWatcher hot-reloads signing trust from a watched file. The
// trust file carries the same expected_certificate and trusted_keys
// fields as the host configuration:
//
//	{
//	  "expected_certificate": "omnitak-release-2026",
//	  "trusted_keys": { "omnitak-release-2026": "<base64 public key>" }
//	}
//
// Changes apply to the validator immediately; bundles already validated
// are unaffected.
type SecurityWatcher struct {
	validator *BundleValidator
	logger    Logger
	audit     *AuditTrail

	mu        sync.Mutex
	running   bool
	trustFile string
	watcher   interface{}

	reloads atomic.Int64
	errors  atomic.Int64
}

// NewSecurityWatcher creates a watcher bound to a validator. The audit
// trail may be nil.
func NewSecurityWatcher(validator *BundleValidator, audit *AuditTrail, logger any) *SecurityWatcher {
	return &SecurityWatcher{
		validator: validator,
		audit:     audit,
		logger:    NewLogger(logger),
	}
}

// Start begins watching the trust file. The file's current content is
// applied on the first poll.
func (w *SecurityWatcher) Start(trustFile string) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return NewConfigWatcherError("security watcher already running", nil)
	}
	if trustFile == "" {
		w.mu.Unlock()
		return NewConfigValidationError("trust file not specified", nil)
	}
	w.trustFile = trustFile
	w.running = true
	w.mu.Unlock()

	argusConfig := argus.Config{
		PollInterval:    500 * time.Millisecond,
		CacheTTL:        1 * time.Second,
		MaxWatchedFiles: 10,
		ErrorHandler: func(err error, path string) {
			w.errors.Add(1)
			w.logger.Error("Trust file watching error", "path", path, "error", err)
			w.audit.RecordSecurityEvent("trust_watch_error",
				"Trust file could not be read", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
		},
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(trustFile, w.handleTrustChange, argusConfig)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return NewConfigWatcherError("failed to watch trust file", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	w.logger.Info("Security trust watching enabled", "file", trustFile)
	w.audit.RecordSecurityEvent("trust_watch_enabled",
		"Security trust watching enabled", map[string]interface{}{
			"file": trustFile,
		})
	return nil
}

// Stop ends trust watching.
func (w *SecurityWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return NewConfigWatcherError("security watcher not running", nil)
	}
	w.running = false

	switch stopper := w.watcher.(type) {
	case interface{ Stop() error }:
		if err := stopper.Stop(); err != nil {
			w.logger.Warn("Failed to stop trust watcher", "error", err)
		}
	case interface{ Stop() }:
		stopper.Stop()
	}
	w.watcher = nil

	w.logger.Info("Security trust watching disabled")
	return nil
}

// Stats returns a snapshot of reload and error counters.
func (w *SecurityWatcher) Stats() SecurityWatcherStats {
	return SecurityWatcherStats{
		Reloads: w.reloads.Load(),
		Errors:  w.errors.Load(),
	}
}

// handleTrustChange is invoked by Argus on every change to the trust
// file. Processing happens on a separate goroutine; Argus may deliver
// the first change synchronously while Start is still on the stack.
func (w *SecurityWatcher) handleTrustChange(config map[string]interface{}) {
	SafeGo(w.logger, func() { w.applyTrustChange(config) })
}

func (w *SecurityWatcher) applyTrustChange(config map[string]interface{}) {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	applied := false
	if certificate, ok := config["expected_certificate"].(string); ok && certificate != "" {
		w.validator.SetExpectedCertificate(certificate)
		applied = true
	}
	if rawKeys, ok := config["trusted_keys"].(map[string]interface{}); ok {
		keys := make(map[string]string, len(rawKeys))
		for certificate, value := range rawKeys {
			if key, ok := value.(string); ok {
				keys[certificate] = key
			}
		}
		w.validator.SetTrustedKeys(keys)
		applied = true
	}
	if !applied {
		w.errors.Add(1)
		w.logger.Warn("Trust file change carried no usable trust fields",
			"file", w.trustFile)
		return
	}

	w.reloads.Add(1)
	w.logger.Info("Security trust configuration reloaded",
		"file", w.trustFile,
		"reloads", w.reloads.Load())
	w.audit.RecordSecurityEvent("trust_reloaded",
		"Security trust configuration reloaded", map[string]interface{}{
			"file": w.trustFile,
		})
}
