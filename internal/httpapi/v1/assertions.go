package v1

import "github.com/tinoosan/tillbook/internal/service/shift"

// Compile-time interface assertions.
var _ ShiftEngine = (*shift.Engine)(nil)
