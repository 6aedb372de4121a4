package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// The host/process lock is advisory: it records which process last claimed
// the database so that other processes can detect concurrent use. Nothing
// enforces exclusion; acting on a foreign lock is the caller's decision.

// SetHostLock records the current host name and process ID in the info
// table, claiming the database for this process.
func (db *DB) SetHostLock(ctx context.Context) error {
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("reading hostname: %w", err)
	}

	if err := db.setInfo(ctx, "host_name", host); err != nil {
		return err
	}
	return db.setInfo(ctx, "process_id", strconv.Itoa(os.Getpid()))
}

// ClearHostLock releases the claim by resetting the host name and process
// ID to their unclaimed values. Call on clean shutdown.
func (db *DB) ClearHostLock(ctx context.Context) error {
	if err := db.setInfo(ctx, "host_name", ""); err != nil {
		return err
	}
	return db.setInfo(ctx, "process_id", "0")
}

// CheckHostLock reports whether this process may treat itself as the
// database's owner session: true when the lock is unclaimed or when it
// matches the current host and process ID, false when another process
// holds it.
func (db *DB) CheckHostLock(ctx context.Context) (bool, error) {
	host, err := db.getInfo(ctx, "host_name")
	if err != nil {
		return false, err
	}
	pid, err := db.getInfo(ctx, "process_id")
	if err != nil {
		return false, err
	}

	if host == "" && (pid == "" || pid == "0") {
		return true, nil
	}

	self, err := os.Hostname()
	if err != nil {
		return false, fmt.Errorf("reading hostname: %w", err)
	}
	return host == self && pid == strconv.Itoa(os.Getpid()), nil
}
