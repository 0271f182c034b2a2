// Package packager is a thin zip-archive adapter the Driver hands its
// output directory to (§2: "the Driver hands the output directory to an
// external packager"). Zip packaging internals are explicitly out of
// core scope (spec.md §1 Non-goals); this wraps archive/zip just enough
// to produce the distributable archive named by configuration (§6:
// "archive name").
package packager

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// Zip walks srcDir and writes every regular file into a new, uncompressed
// (ZIP_STORED) archive at destZipPath — ciphertext is already
// high-entropy, so DEFLATE buys nothing and only costs CPU.
func Zip(srcDir, destZipPath string) error {
	out, err := os.Create(destZipPath) // #nosec G304 - destination path supplied by the driver's own run
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	return filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Store}
		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}

		src, err := os.Open(path) // #nosec G304 - path produced by WalkDir over srcDir
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(writer, src)
		return err
	})
}
