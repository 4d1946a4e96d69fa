package murmur

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock acquisition parameters. Locks left by a dead process go stale after
// lockStaleAfter and are broken.
const (
	lockRetryInterval = 10 * time.Millisecond
	lockTimeout       = 5 * time.Second
	lockStaleAfter    = 30 * time.Second
)

// lockTeam takes the per-team file lock, creating <team>.lock with O_EXCL.
// Returns an unlock func. State mutations for a team run under this lock so
// concurrent processes never interleave read-modify-write cycles.
func (m *Manager) lockTeam(teamID string) (func(), error) {
	dir := filepath.Join(m.root, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create murmur dir: %w", err)
	}
	lockPath := filepath.Join(dir, teamID+".lock")

	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if fi, statErr := os.Stat(lockPath); statErr == nil && time.Since(fi.ModTime()) > lockStaleAfter {
			m.log.Warn().Str("team", teamID).Msg("Breaking stale murmur lock")
			os.Remove(lockPath)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for murmur lock: %s", teamID)
		}
		time.Sleep(lockRetryInterval)
	}
}
