package drive

import "errors"

// ErrClosed is returned by a drive that has been released.
var ErrClosed = errors.New("drive closed")
