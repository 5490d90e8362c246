package proc

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcFS reads the process table from a procfs mount.
type ProcFS struct {
	Root string
}

// Compile-time guard.
var _ Table = (*ProcFS)(nil)

// NewProcFS returns a Table backed by /proc.
func NewProcFS() *ProcFS {
	return &ProcFS{Root: "/proc"}
}

// List returns every process readable under Root. Entries that disappear
// while being read are skipped.
func (fs *ProcFS) List(ctx context.Context) ([]Process, error) {
	entries, err := os.ReadDir(fs.Root)
	if err != nil {
		return nil, err
	}

	var procs []Process
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		p, ok := fs.read(pid)
		if !ok {
			continue
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func (fs *ProcFS) read(pid int) (Process, bool) {
	dir := filepath.Join(fs.Root, strconv.Itoa(pid))

	uid, ok := readUID(filepath.Join(dir, "status"))
	if !ok {
		return Process{}, false
	}
	p := Process{PID: pid, UID: uid}

	if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		p.Name = strings.TrimSpace(string(comm))
	}
	if raw, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
		p.Cmdline = strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
	}
	return p, true
}

// readUID extracts the real uid from the "Uid:" line of a status file.
func readUID(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "Uid:"))
		if len(fields) == 0 {
			return 0, false
		}
		uid, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, false
		}
		return uid, true
	}
	return 0, false
}
