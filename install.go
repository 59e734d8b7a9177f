// install.go: bundle staging and managed-directory file operations
//
// Installation accepts a bundle either as a directory or as a zip archive
// of one. Archives are extracted to a temporary staging directory before
// validation so a rejected bundle never touches the managed plugin
// directory. Every write into the managed directory is atomic.
//
// Copyright (c) 2025 OmniTAK Project
// Series: an OmniTAK library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxArtifactFileSize bounds a single extracted archive entry. Bundle
// artifacts are plugin binaries and assets; anything claiming to be
// larger is treated as a malformed archive.
const maxArtifactFileSize = 512 << 20

// stageSource resolves an install source to a bundle directory. A
// directory is used in place; a zip archive is extracted to a temporary
// staging directory and cleanup removes it. cleanup is nil when nothing
// was staged.
func (m *Manager) stageSource(sourcePath string) (string, func(), error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", nil, NewBundleStructureError(sourcePath, "bundle source not accessible", err)
	}
	if info.IsDir() {
		return sourcePath, nil, nil
	}
	if !info.Mode().IsRegular() {
		return "", nil, NewBundleStructureError(sourcePath, "bundle source must be a directory or zip archive", nil)
	}

	stagingDir, err := os.MkdirTemp("", "omniplugin-install-*")
	if err != nil {
		return "", nil, NewInstallFailedError(sourcePath, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			m.logger.Warn("Staging directory could not be removed",
				"path", stagingDir, "error", err)
		}
	}

	if err := extractBundleArchive(sourcePath, stagingDir); err != nil {
		cleanup()
		return "", nil, err
	}

	bundleDir, err := bundleRoot(stagingDir)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	m.logger.Debug("Bundle archive staged",
		"source", sourcePath, "staging", bundleDir)
	return bundleDir, cleanup, nil
}

// extractBundleArchive unpacks a zip archive into destDir. Entry paths
// are confined to destDir; an entry that would escape it fails the whole
// extraction.
func extractBundleArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return NewBundleStructureError(archivePath, "bundle source must be a directory or zip archive", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := confinedPath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return NewInstallFailedError(archivePath, err)
			}
			continue
		}
		if entry.UncompressedSize64 > maxArtifactFileSize {
			return NewBundleStructureError(archivePath,
				"archive entry exceeds maximum artifact size", nil)
		}
		if err := extractArchiveEntry(entry, target); err != nil {
			return NewInstallFailedError(archivePath, err)
		}
	}
	return nil
}

// extractArchiveEntry writes one regular archive entry to target,
// preserving its file mode.
func extractArchiveEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// confinedPath joins an archive entry name onto root and verifies the
// result stays inside root. Absolute entries and ".." traversal are
// rejected.
func confinedPath(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", NewBundleStructureError(name, "archive entry escapes bundle root", nil)
	}
	return filepath.Join(root, cleaned), nil
}

// bundleRoot locates the bundle directory inside a staging directory.
// Archives commonly wrap the bundle in a single top-level directory;
// when the staging root holds exactly one directory and no manifest of
// its own, that directory is the bundle.
func bundleRoot(stagingDir string) (string, error) {
	if _, err := readManifestFile(stagingDir); err == nil {
		return stagingDir, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return "", NewBundleStructureError(stagingDir, "staged bundle not readable", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(stagingDir, entries[0].Name()), nil
	}
	return "", NewBundleStructureError(stagingDir, "no plugin manifest found in archive", nil)
}

// placeManagedCopy copies a validated bundle directory to destPath,
// replacing any previous copy. Installing from the managed location
// itself is a no-op.
func (m *Manager) placeManagedCopy(bundleDir, destPath string) error {
	srcAbs, err := filepath.Abs(bundleDir)
	if err != nil {
		return err
	}
	dstAbs, err := filepath.Abs(destPath)
	if err != nil {
		return err
	}
	if srcAbs == dstAbs {
		m.logger.Debug("Bundle already in managed directory", "path", destPath)
		return nil
	}

	if err := os.RemoveAll(destPath); err != nil {
		return err
	}
	return copyDir(bundleDir, destPath)
}

// copyDir recursively copies a directory tree. Regular files and
// directories are copied with their permissions; anything else (symlinks
// included) is skipped, since a bundle must be self-contained.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

// copyFile copies one regular file, creating parent directories as
// needed.
func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeFileAtomic writes data to path through a temporary file and
// rename, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
