package memory

import (
	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/storage"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ storage.Atomic  = (*Store)(nil)
	_ storage.Records = (*Store)(nil)
	_ storage.Tx      = (*tx)(nil)

	// Service layer repos and writers
	_ journal.Repo   = (*Store)(nil)
	_ account.Repo   = (*Store)(nil)
	_ account.Writer = (*Store)(nil)
)
