package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Gate names a verification predicate an orchestrator may require.
type Gate string

const (
	GateEmail   Gate = "email"
	GateKYC     Gate = "kyc"
	GateProfile Gate = "profile"
)

// Identity is the verified caller handed explicitly to every orchestrator call.
type Identity struct {
	UserID          uuid.UUID
	Email           string
	Role            string
	EmailVerified   bool
	KYCVerified     bool
	ProfileVerified bool
}

// Require returns ErrVerificationRequired naming the first unmet gate.
func (id Identity) Require(gates ...Gate) error {
	for _, g := range gates {
		ok := false
		switch g {
		case GateEmail:
			ok = id.EmailVerified
		case GateKYC:
			ok = id.KYCVerified
		case GateProfile:
			ok = id.ProfileVerified
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrVerificationRequired, g)
		}
	}
	return nil
}
