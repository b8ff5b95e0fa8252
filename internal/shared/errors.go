package shared

import "errors"

// ErrMissingActor occurs when the auth layer did not identify the user of an
// audited write.
var ErrMissingActor = errors.New("acting user missing")
