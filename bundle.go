// bundle.go: on-disk bundle layout and the validated bundle type
//
// A bundle is a directory (conventionally named <id>.omniplugin) holding a
// manifest, a detached signature record, and one artifact per supported
// platform laid out as <platform>/<entryPointName>.<ext>. Reading a bundle
// only proves the files exist and parse; PluginBundle values are produced
// exclusively by the validator after every check has passed, so holding a
// *PluginBundle is proof of a fully validated bundle.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// BundleExtension is the conventional suffix for managed bundle
// directories.
const BundleExtension = ".omniplugin"

// maxMetadataFileSize bounds manifest and signature files. Metadata an
// order of magnitude larger than any legitimate manifest is treated as
// hostile input rather than parsed.
const maxMetadataFileSize = 256 * 1024

// manifestFileNames lists accepted manifest file names in lookup order.
// JSON is canonical; YAML is tolerated for hand-authored bundles.
var manifestFileNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// signatureFileName is the detached signature record inside a bundle.
const signatureFileName = "signature.json"

// PluginBundle is an immutable, fully validated bundle: manifest, resolved
// entry point for the host platform, and signature. Values are constructed
// only by BundleValidator.Validate; no partially validated bundle ever
// escapes.
type PluginBundle struct {
	path         string
	manifest     *PluginManifest
	manifestRaw  []byte
	signature    *PluginSignature
	entryPoint   string
	artifactPath string
}

// Path returns the bundle's root directory.
func (b *PluginBundle) Path() string { return b.path }

// Manifest returns the validated manifest.
func (b *PluginBundle) Manifest() *PluginManifest { return b.manifest }

// Signature returns the verified signature record.
func (b *PluginBundle) Signature() *PluginSignature { return b.signature }

// EntryPoint returns the entry-point identifier resolved for the host
// platform.
func (b *PluginBundle) EntryPoint() string { return b.entryPoint }

// ArtifactPath returns the on-disk artifact backing the entry point.
func (b *PluginBundle) ArtifactPath() string { return b.artifactPath }

// rawBundle is the pre-validation view of an on-disk bundle: files read
// and parsed, nothing checked. Only the validator consumes it.
type rawBundle struct {
	path        string
	manifest    *PluginManifest
	manifestRaw []byte
	signature   *PluginSignature
}

// readBundle reads and parses the metadata files of the bundle directory
// at path. Parsing here is mechanical; semantic validation happens in the
// validator.
func readBundle(path string) (*rawBundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewBundleStructureError(path, "The bundle path could not be read", err)
	}
	if !info.IsDir() {
		return nil, NewBundleStructureError(path, "The bundle path is not a directory", nil)
	}

	manifestRaw, err := readManifestFile(path)
	if err != nil {
		return nil, err
	}
	manifest, err := ParseManifest(manifestRaw)
	if err != nil {
		return nil, err
	}

	signaturePath := filepath.Join(path, signatureFileName)
	signatureRaw, err := readMetadataFile(signaturePath)
	if err != nil {
		return nil, NewSignatureMissingError(path, err)
	}
	signature, err := ParseSignature(signatureRaw)
	if err != nil {
		return nil, err
	}

	return &rawBundle{
		path:        path,
		manifest:    manifest,
		manifestRaw: manifestRaw,
		signature:   signature,
	}, nil
}

// readManifestFile locates and reads the manifest inside a bundle, trying
// each accepted file name in order.
func readManifestFile(bundlePath string) ([]byte, error) {
	for _, name := range manifestFileNames {
		candidate := filepath.Join(bundlePath, name)
		data, err := readMetadataFile(candidate)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, NewBundleStructureError(bundlePath,
				"The bundle manifest could not be read", err)
		}
	}
	return nil, NewBundleStructureError(bundlePath,
		"The bundle does not contain a manifest", nil)
}

// readMetadataFile reads a metadata file with the size bound applied
// before any bytes are loaded.
func readMetadataFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	if info.Size() > maxMetadataFileSize {
		return nil, fmt.Errorf("%s exceeds the %d byte metadata limit", path, maxMetadataFileSize)
	}
	return os.ReadFile(path)
}

// resolveArtifact locates the loadable artifact backing an entry point:
// any regular file named <entryPointName>.<ext> (or exactly the entry
// point name) under the platform directory. Multiple matches resolve to
// the lexically first for determinism.
func resolveArtifact(bundlePath, platform, entryPoint string) (string, bool) {
	pattern := filepath.Join(bundlePath, platform, entryPoint+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", false
	}

	var files []string
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			files = append(files, match)
		}
	}
	if len(files) > 0 {
		sort.Strings(files)
		return files[0], true
	}

	bare := filepath.Join(bundlePath, platform, entryPoint)
	if info, err := os.Stat(bare); err == nil && !info.IsDir() {
		return bare, true
	}
	return "", false
}
