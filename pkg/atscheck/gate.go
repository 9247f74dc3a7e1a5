package atscheck

// Decision is the outcome of the entitlement gate
type Decision int

const (
	// Allow lets the upload proceed
	Allow Decision = iota
	// RequireLogin blocks an anonymous user who used up the anonymous quota
	RequireLogin
	// RequireUpgrade blocks a signed-in user who used up the plan quota
	RequireUpgrade
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireLogin:
		return "require_login"
	case RequireUpgrade:
		return "require_upgrade"
	default:
		return "unknown"
	}
}

// Err returns the gate error for a blocking decision, nil for Allow
func (d Decision) Err() error {
	switch d {
	case RequireLogin:
		return ErrLoginRequired
	case RequireUpgrade:
		return ErrUpgradeRequired
	default:
		return nil
	}
}

// CanProceed decides whether an upload may proceed.
// It must be fed a freshly refreshed UsageInfo; the backend stays authoritative.
func CanProceed(authenticated bool, uploadsUsed, limit int) Decision {
	if uploadsUsed < limit {
		return Allow
	}
	if !authenticated {
		return RequireLogin
	}
	return RequireUpgrade
}
