package autodetect

import "errors"

// ErrUnreachable is returned when neither streamable-HTTP nor SSE could
// establish a session and no authentication challenge explains why.
var ErrUnreachable = errors.New("autodetect: server unreachable over either transport")
