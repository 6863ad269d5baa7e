package experiment

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// SourceArchiveName is the archive of the repository tree the
// dispatcher unpacks inside its container.
const SourceArchiveName = "src.tar.gz"

// filterSourceRegex matches repository paths the dispatcher does not
// need; they stay out of the source archive.
var filterSourceRegex = regexp.MustCompile(`(^\.git/|^\.venv/|^docs/|.*~$|.*/test_data/|^third_party/oss-fuzz/build/)`)

// ArchiveSource writes a gzipped tar of the repository tree rooted at
// rootDir. Local changes to any file propagate to the dispatcher this
// way.
func ArchiveSource(rootDir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		name := filepath.ToSlash(rel)
		if d.IsDir() {
			name += "/"
		}
		if filterSourceRegex.MatchString(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive source tree: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive source tree: %w", err)
	}
	return gz.Close()
}

// StageResourcesLocal places the dispatcher input for one experiment
// into a posix experiment filestore: the source archive and the
// materialized config directory.
func StageResourcesLocal(rootDir, filestorePath, experimentName, configDir string) error {
	inputDir := filepath.Join(filestorePath, experimentName, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}

	archive, err := os.Create(filepath.Join(inputDir, SourceArchiveName))
	if err != nil {
		return fmt.Errorf("create source archive: %w", err)
	}
	if err := ArchiveSource(rootDir, archive); err != nil {
		archive.Close()
		return err
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("create source archive: %w", err)
	}

	return copyDir(configDir, filepath.Join(inputDir, "config"))
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
