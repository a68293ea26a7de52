package processoradapter

import "errors"

// ErrUnknownTransaction is returned for a clearing or reversal event
// whose processor transaction id has no prior mapping. The caller
// translates this into a 5xx so the processor retries.
var ErrUnknownTransaction = errors.New("unknown processor transaction")
