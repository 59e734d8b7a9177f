// testing_helpers_test.go: shared fixtures for plugin host tests
//
// Bundle fixtures are written into t.TempDir() directories with the
// on-disk layout the validator expects: a <id>.omniplugin directory
// holding manifest.json, signature.json and one artifact per platform.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

const (
	// testCertificate is the signing certificate every fixture is signed
	// with unless a test overrides it.
	testCertificate = "omnitak-release-2025"

	// testPlatform keeps fixtures independent of the machine the tests
	// run on; host configurations built here always name it explicitly.
	testPlatform = "android-arm64"

	// testEntryPoint is the entry-point identifier the shared factory
	// registry binds.
	testEntryPoint = "host-test-plugin"
)

// bundleSpec describes one test bundle. Zero fields fall back to a valid
// default, so most tests only set the fields they are about.
type bundleSpec struct {
	ID          string
	Name        string
	Version     string
	Requirement string
	Permissions []string
	EntryPoints map[string]string

	Certificate string
	Algorithm   string
	Signature   string
	Timestamp   string

	// ManifestRaw replaces the generated manifest bytes entirely.
	ManifestRaw []byte

	// OmitSignature leaves signature.json out of the bundle.
	OmitSignature bool

	// OmitArtifact leaves the platform artifact files out of the bundle.
	OmitArtifact bool
}

func (spec *bundleSpec) applyDefaults() {
	if spec.ID == "" {
		spec.ID = "com.omnitak.test"
	}
	if spec.Version == "" {
		spec.Version = "1.0.0"
	}
	if spec.Requirement == "" {
		spec.Requirement = "^1.0.0"
	}
	if spec.EntryPoints == nil {
		spec.EntryPoints = map[string]string{testPlatform: testEntryPoint}
	}
	if spec.Certificate == "" {
		spec.Certificate = testCertificate
	}
	if spec.Algorithm == "" {
		spec.Algorithm = SignatureAlgorithmEd25519
	}
	if spec.Signature == "" {
		spec.Signature = base64.StdEncoding.EncodeToString([]byte("fixture-signature"))
	}
	if spec.Timestamp == "" {
		spec.Timestamp = "2025-06-01T09:30:00Z"
	}
}

func (spec *bundleSpec) manifestBytes(t *testing.T) []byte {
	t.Helper()
	if spec.ManifestRaw != nil {
		return spec.ManifestRaw
	}
	manifest := PluginManifest{
		ID:             spec.ID,
		Name:           spec.Name,
		Version:        spec.Version,
		OmniTAKVersion: spec.Requirement,
		Permissions:    spec.Permissions,
		EntryPoints:    spec.EntryPoints,
	}
	raw, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		t.Fatalf("Failed to encode manifest fixture: %v", err)
	}
	return raw
}

// writeBundleFixture materializes a bundle directory under parent and
// returns its path.
func writeBundleFixture(t *testing.T, parent string, spec bundleSpec) string {
	t.Helper()
	spec.applyDefaults()

	bundleDir := filepath.Join(parent, spec.ID+BundleExtension)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("Failed to create bundle directory: %v", err)
	}

	manifestRaw := spec.manifestBytes(t)
	if err := os.WriteFile(filepath.Join(bundleDir, "manifest.json"), manifestRaw, 0o644); err != nil {
		t.Fatalf("Failed to write manifest fixture: %v", err)
	}

	if !spec.OmitSignature {
		signature := PluginSignature{
			Algorithm:   spec.Algorithm,
			Signature:   spec.Signature,
			Certificate: spec.Certificate,
			Timestamp:   spec.Timestamp,
		}
		raw, err := json.MarshalIndent(&signature, "", "  ")
		if err != nil {
			t.Fatalf("Failed to encode signature fixture: %v", err)
		}
		if err := os.WriteFile(filepath.Join(bundleDir, signatureFileName), raw, 0o644); err != nil {
			t.Fatalf("Failed to write signature fixture: %v", err)
		}
	}

	if !spec.OmitArtifact {
		for platform, entryPoint := range spec.EntryPoints {
			platformDir := filepath.Join(bundleDir, platform)
			if err := os.MkdirAll(platformDir, 0o755); err != nil {
				t.Fatalf("Failed to create platform directory: %v", err)
			}
			artifact := filepath.Join(platformDir, entryPoint+".so")
			if err := os.WriteFile(artifact, []byte("artifact"), 0o644); err != nil {
				t.Fatalf("Failed to write artifact fixture: %v", err)
			}
		}
	}

	return bundleDir
}

// writeSignedBundleFixture writes a bundle whose signature payload is a
// real Ed25519 signature over the manifest digest. Returns the bundle
// path and the base64 public key to configure as trusted.
func writeSignedBundleFixture(t *testing.T, parent string, spec bundleSpec) (string, string) {
	t.Helper()
	spec.applyDefaults()

	manifestRaw := spec.manifestBytes(t)

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate signing key: %v", err)
	}
	digest := sha256.Sum256(manifestRaw)

	spec.ManifestRaw = manifestRaw
	spec.Algorithm = SignatureAlgorithmEd25519
	spec.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, digest[:]))

	bundleDir := writeBundleFixture(t, parent, spec)
	return bundleDir, base64.StdEncoding.EncodeToString(publicKey)
}

// newHostConfig builds a host configuration rooted in a fresh temp
// directory: host 1.3.2 on the fixture platform, trusting the fixture
// certificate.
func newHostConfig(t *testing.T) *HostConfig {
	t.Helper()
	base := t.TempDir()
	return &HostConfig{
		HostVersion:         "1.3.2",
		Platform:            testPlatform,
		PluginsDir:          filepath.Join(base, "plugins"),
		StorageDir:          filepath.Join(base, "storage"),
		ExpectedCertificate: testCertificate,
	}
}

// recordingPlugin counts lifecycle hook calls and can be armed to fail,
// stall or panic on any of them.
type recordingPlugin struct {
	mu          sync.Mutex
	initialized int
	activated   int
	deactivated int
	cleaned     int
	lastContext *PluginContext

	initErr       error
	activateErr   error
	deactivateErr error
	cleanupErr    error

	initPanic     string
	activatePanic string

	initDelay time.Duration
}

func (p *recordingPlugin) Initialize(ctx *PluginContext) error {
	p.mu.Lock()
	p.initialized++
	p.lastContext = ctx
	delay, failure, message := p.initDelay, p.initErr, p.initPanic
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if message != "" {
		panic(message)
	}
	return failure
}

func (p *recordingPlugin) Activate() error {
	p.mu.Lock()
	p.activated++
	failure, message := p.activateErr, p.activatePanic
	p.mu.Unlock()

	if message != "" {
		panic(message)
	}
	return failure
}

func (p *recordingPlugin) Deactivate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivated++
	return p.deactivateErr
}

func (p *recordingPlugin) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleaned++
	return p.cleanupErr
}

// counts returns a snapshot of hook call counters in lifecycle order.
func (p *recordingPlugin) counts() (initialized, activated, deactivated, cleaned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized, p.activated, p.deactivated, p.cleaned
}

func (p *recordingPlugin) capturedContext() *PluginContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastContext
}

// pluginRecorder is a factory that remembers every plugin it constructs,
// so tests can reach the plugin object behind a loaded instance.
type pluginRecorder struct {
	mu        sync.Mutex
	created   []*recordingPlugin
	configure func(*recordingPlugin)
	creation  error
}

func (r *pluginRecorder) factory() (Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.creation != nil {
		return nil, r.creation
	}
	plugin := &recordingPlugin{}
	if r.configure != nil {
		r.configure(plugin)
	}
	r.created = append(r.created, plugin)
	return plugin, nil
}

func (r *pluginRecorder) last() *recordingPlugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return nil
	}
	return r.created[len(r.created)-1]
}

func (r *pluginRecorder) createdCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// newTestFactories returns a registry with the shared test entry point
// bound to a recording factory.
func newTestFactories(t *testing.T) (*FactoryRegistry, *pluginRecorder) {
	t.Helper()
	recorder := &pluginRecorder{}
	factories := NewFactoryRegistry(nil)
	if err := factories.Register(testEntryPoint, recorder.factory); err != nil {
		t.Fatalf("Failed to register test factory: %v", err)
	}
	return factories, recorder
}

// newTestLoader wires a loader over the shared test factories.
func newTestLoader(t *testing.T, cfg *HostConfig) (*Loader, *pluginRecorder) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Host configuration invalid: %v", err)
	}
	factories, recorder := newTestFactories(t)
	loader, err := NewLoader(cfg, factories, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	return loader, recorder
}

// newTestManager wires a manager over the shared test factories.
func newTestManager(t *testing.T, cfg *HostConfig) (*Manager, *pluginRecorder) {
	t.Helper()
	factories, recorder := newTestFactories(t)
	manager, err := NewManager(cfg, factories, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager, recorder
}

// eventCollector gathers plugin events delivered on dispatcher
// goroutines.
type eventCollector struct {
	mu     sync.Mutex
	events []PluginEvent
}

func (c *eventCollector) handle(event PluginEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCollector) snapshot() []PluginEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PluginEvent, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor blocks until an event of the given type for the given plugin
// has been delivered, or the timeout passes. Delivery is asynchronous,
// so tests poll rather than assume ordering against the emitting call.
func (c *eventCollector) waitFor(eventType PluginEventType, pluginID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, event := range c.snapshot() {
			if event.Type == eventType && event.PluginID == pluginID {
				return true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// mustPermissionSet builds a permission set from identifiers, failing
// the test on unknown ones.
func mustPermissionSet(t *testing.T, identifiers ...string) *PermissionSet {
	t.Helper()
	set, err := NewPermissionSet(identifiers)
	if err != nil {
		t.Fatalf("Failed to build permission set %v: %v", identifiers, err)
	}
	return set
}

// captureLogger records every message and keeps recording through With
// chains, unlike TestLogger whose With returns a detached copy. Used
// where the code under test logs through a derived logger.
type captureLogger struct {
	mu       sync.Mutex
	messages []TestLogMessage
}

func (l *captureLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, TestLogMessage{Level: level, Message: msg, Args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }
func (l *captureLogger) With(args ...any) Logger       { return l }

func (l *captureLogger) hasMessage(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.Level == level && m.Message == message {
			return true
		}
	}
	return false
}

// waitForMessage polls until the message shows up or the timeout passes,
// for messages logged on other goroutines.
func (l *captureLogger) waitForMessage(level, message string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l.hasMessage(level, message) {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// asHostError unwraps err to the structured host error, failing the test
// when err is not one.
func asHostError(t *testing.T, err error) *errors.Error {
	t.Helper()
	var hostErr *errors.Error
	if !stderrors.As(err, &hostErr) {
		t.Fatalf("Expected a structured host error, got %T: %v", err, err)
	}
	return hostErr
}

// assertErrorCode fails the test unless err carries the given error code.
func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	hostErr := asHostError(t, err)
	if string(hostErr.Code) != code {
		t.Errorf("Expected error code %s, got %s", code, hostErr.Code)
	}
}

// assertErrorContext fails the test unless err carries the given context
// value.
func assertErrorContext(t *testing.T, err error, key string, expected interface{}) {
	t.Helper()
	hostErr := asHostError(t, err)
	if hostErr.Context[key] != expected {
		t.Errorf("Expected context %s=%v, got %v", key, expected, hostErr.Context[key])
	}
}
