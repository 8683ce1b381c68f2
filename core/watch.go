package core

// BlockTx is the part of a block transaction the watcher inspects
type BlockTx struct {
	Hash string
	From string
	To   string
}

// Trigger is a detected distribution transaction
type Trigger struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	From        string `json:"from"`
}

// WatchState is a snapshot of the distribution watcher
type WatchState struct {
	LastObservedBlock uint64 `json:"last_observed_block"`
	Claiming          bool   `json:"claiming"`
	Runs              uint64 `json:"runs"`
	SkippedTriggers   uint64 `json:"skipped_triggers"`
}
