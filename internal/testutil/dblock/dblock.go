// Package dblock serializes test binaries that share one Postgres database.
// go test runs packages in parallel; each binary holding the lock owns the
// schema until it releases it.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the lock. The lock is a listening
// TCP socket, so it is dropped automatically if the process dies.
func Acquire() (release func()) {
	addr := os.Getenv("WALLET_TEST_DB_LOCK_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
