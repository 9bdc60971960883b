package authz

import "time"

// Config holds the chain configuration values authorization depends on.
// On a live chain both come from the global properties object.
type Config struct {
	// MaxAuthorityDepth bounds permission tree height and authority
	// recursion. Defaults to 6.
	MaxAuthorityDepth uint16 `json:"max_authority_depth,omitempty"`

	// MaxTransactionDelay is the delay at or above which a provided
	// delay is treated as unbounded. Defaults to 45 days.
	MaxTransactionDelay time.Duration `json:"max_transaction_delay,omitempty"`
}

// DefaultConfig returns a Config with the chain's default limits.
func DefaultConfig() Config {
	return Config{
		MaxAuthorityDepth:   6,
		MaxTransactionDelay: 45 * 24 * time.Hour,
	}
}
