package store

// Storage prefixes
const (
	BlockPrefix      = "bl-"
	BlockIndexPrefix = "bi-"
	AccountPrefix    = "ac-"
	PendingPrefix    = "pd-"
	LastBlockKey     = "last-block"
)
