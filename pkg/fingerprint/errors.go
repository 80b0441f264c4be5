package fingerprint

import "errors"

// ErrNotRegular is returned by File when the path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")
