package escrow

import "time"

// Account holds the native-value balance of a single principal. Balances are
// plain integers; the database enforces they never go negative.
type Account struct {
	Principal string
	Balance   int64
	UpdatedAt time.Time
}

// Transfer kinds recorded in the audit trail.
const (
	KindDeposit = "deposit"
	KindStake   = "stake"
	KindPayout  = "payout"
	KindSplit   = "split"
)

// Transfer is an immutable record of one value movement between accounts.
type Transfer struct {
	ID        int64
	From      string
	To        string
	Amount    int64
	DisputeID *int64
	Kind      string
	CreatedAt time.Time
}
