package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

var ErrAlreadyRunning = errors.New("worker already running")

// WritePIDFile records the current process id at path. Starters serialize
// on an flock of path+".lock"; an existing file naming another live process
// makes it return ErrAlreadyRunning, and a stale one is replaced.
func WritePIDFile(path string) error {
	return writePIDFile(path, os.Getpid())
}

func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	// the lock file is never removed; deleting it would let a second
	// starter lock a fresh inode
	lf, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open pid lock: %w", err)
	}
	defer lf.Close()
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	defer syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)

	state, holder := Status(path)
	if state == StateRunning {
		if holder == pid {
			return nil
		}
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, holder)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: pid file %s was recreated", ErrAlreadyRunning, path)
		}
		return fmt.Errorf("create pid file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return fmt.Errorf("write pid file: %w", werr)
	}
	return nil
}

// RemovePIDFile deletes path if it still holds this process's id.
func RemovePIDFile(path string) error {
	pid, err := readPID(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// Status reads the PID file and probes the process with signal 0.
func Status(path string) (State, int) {
	pid, err := readPID(path)
	if err != nil {
		return StateStopped, 0
	}
	if !processAlive(pid) {
		return StateStopped, pid
	}
	return StateRunning, pid
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	// EPERM: the process exists but belongs to someone else
	return err == nil || errors.Is(err, syscall.EPERM)
}
