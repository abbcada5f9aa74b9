package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Reference prefixes per operation.
const (
	RefPrefixTransfer   = "TRF"
	RefPrefixWithdrawal = "WDR"
	RefPrefixConversion = "CNV"
	RefPrefixDeposit    = "DEP"
)

// NewReference returns a globally unique, time-sortable reference like TRF-01HZX....
func NewReference(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return strings.ToUpper(prefix) + "-" + id.String()
}
