package receipt

import "time"

// Token is a unique ownable receipt minted once per resolved dispute. Tokens
// are non-transferable; the single exception is releasing a system-held tie
// receipt to one of the dispute parties.
type Token struct {
	ID         int64
	DisputeID  int64
	Owner      string
	Tie        bool
	Metadata   []byte
	MintedAt   time.Time
	ReleasedAt *time.Time
	ReleasedTo *string
}

// MintParams is supplied by the engine when a dispute resolves.
type MintParams struct {
	DisputeID int64
	Owner     string
	Tie       bool
	Title     string
	Summary   string
}
