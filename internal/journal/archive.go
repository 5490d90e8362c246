package journal

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Archive writes a tar.gz containing a consistent snapshot of the journal
// database, a JSON dump of every run and, when it exists, the config file.
func (j *Journal) Archive(ctx context.Context, configPath, outputPath string) (err error) {
	tmp, err := os.MkdirTemp("", "cellwatch-archive-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, "journal.db")
	if _, err := j.store.DB().ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("snapshot journal: %w", err)
	}

	runs, err := j.Recent(ctx, "", -1)
	if err != nil {
		return err
	}
	dump, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode runs: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	if err := addFile(tw, snapshot, "journal.db"); err != nil {
		return fmt.Errorf("add snapshot: %w", err)
	}
	if err := addBytes(tw, "runs.json", dump); err != nil {
		return fmt.Errorf("add runs: %w", err)
	}
	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			if err := addFile(tw, configPath, filepath.Base(configPath)); err != nil {
				return fmt.Errorf("add config: %w", err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func addBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
