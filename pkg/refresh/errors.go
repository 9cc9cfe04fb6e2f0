package refresh

import "errors"

// ErrRefreshFailed indicates every refresh endpoint variant was exhausted
// without obtaining a usable credential.
var ErrRefreshFailed = errors.New("refresh.failed")
