package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file not created: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file not removed after release")
	}

	// Release is safe to call twice.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestExtractPID(t *testing.T) {
	cases := map[string]int{
		"pid=1234\n":   1234,
		"pid=":         0,
		"no pid here":  0,
		"pid=99 extra": 99,
	}
	for content, want := range cases {
		if got := extractPID(content); got != want {
			t.Errorf("extractPID(%q) = %d, want %d", content, got, want)
		}
	}
}

func TestLockErrorMessage(t *testing.T) {
	e := &LockError{LockPath: "/tmp/leadline.lock", ExistingInfo: fmt.Sprintf("PID %d (running)", 42)}
	msg := e.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	for _, want := range []string{"/tmp/leadline.lock", "PID 42"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}
