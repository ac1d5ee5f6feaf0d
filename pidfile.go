package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	// The data directory also holds the state database and token files.
	pidDirPermissions = 0o700
)

// errNoDaemon is returned by signalDaemon when no watch process owns the
// PID file.
var errNoDaemon = errors.New("no running watch daemon")

// daemonLock is the flock-held PID file of a running watch daemon.
type daemonLock struct {
	path string
	f    *os.File
}

// acquireDaemonLock creates path, takes a non-blocking exclusive flock on it
// and records the current PID. Only one watch daemon per data directory can
// hold the lock.
func acquireDaemonLock(path string) (*daemonLock, error) {
	if path == "" {
		return nil, errors.New("PID file path is empty; cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	lock := &daemonLock{path: path, f: f}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another watch daemon is already running (could not lock %s)", path)
	}

	if err := lock.record(os.Getpid()); err != nil {
		f.Close()

		return nil, err
	}

	return lock, nil
}

func (l *daemonLock) record(pid int) error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing PID file: %w", err)
	}

	return nil
}

// Release removes the PID file and drops the lock.
func (l *daemonLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", path, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// signalDaemon delivers sig to the watch daemon recorded in pidPath. A PID
// file whose process is gone is removed and reported as errNoDaemon.
func signalDaemon(pidPath string, sig syscall.Signal) error {
	pid, err := readPIDFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w (no PID file at %s)", errNoDaemon, pidPath)
	}

	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if proc.Signal(syscall.Signal(0)) != nil {
		os.Remove(pidPath)

		return fmt.Errorf("%w: PID %d is not running, stale PID file removed", errNoDaemon, pid)
	}

	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("sending %s to daemon (PID %d): %w", sig, pid, err)
	}

	return nil
}
