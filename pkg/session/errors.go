package session

import "errors"

// ErrLoginFailed indicates the login endpoint rejected the credentials or
// returned an unusable response. The wrapped message is safe to show.
var ErrLoginFailed = errors.New("session.login_failed")
