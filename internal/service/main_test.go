package service

import (
	"os"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/testutil/dblock"
)

// Postgres-backed tests share one database, so packages take turns.
func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}
