package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	outputLockDirName   = ".run.lock"
	outputLockOwnerFile = "owner.json"
)

// OutputLock keeps two runs from writing into the same output root.
type OutputLock struct {
	lockDir string
}

type outputLockOwner struct {
	PID       int    `json:"pid"`
	RunID     string `json:"run_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireOutputLock(outputDir, runID string) (OutputLock, error) {
	target := strings.TrimSpace(outputDir)
	if target == "" {
		return OutputLock{}, fmt.Errorf("output directory is required")
	}
	if err := Mkdir(target); err != nil {
		return OutputLock{}, err
	}

	lockDir := filepath.Join(target, outputLockDirName)
	if err := os.Mkdir(lockDir, defaultDirectoryMod); err != nil {
		if !os.IsExist(err) {
			return OutputLock{}, fmt.Errorf("acquire output lock for %s: %w", target, err)
		}
		var owner outputLockOwner
		if readErr := ReadJSON(filepath.Join(lockDir, outputLockOwnerFile), &owner); readErr == nil && owner.PID > 0 {
			return OutputLock{}, fmt.Errorf(
				"output directory is in use: %s (pid=%d run_id=%s created_at=%s host=%s); remove %s if that run is gone",
				target, owner.PID, owner.RunID, owner.CreatedAt, owner.Hostname, lockDir,
			)
		}
		return OutputLock{}, fmt.Errorf("output directory is in use: %s; remove %s if no run is active", target, lockDir)
	}

	owner := outputLockOwner{
		PID:       os.Getpid(),
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, outputLockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return OutputLock{}, fmt.Errorf("write output lock owner for %s: %w", target, err)
	}
	return OutputLock{lockDir: lockDir}, nil
}

func (l OutputLock) Path() string {
	return l.lockDir
}

func (l OutputLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	if err := os.RemoveAll(l.lockDir); err != nil {
		return fmt.Errorf("release output lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
