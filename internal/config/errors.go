package config

import "errors"

var ErrUnknownMode = errors.New("unknown buffer mode")
var ErrWindowOutOfRange = errors.New("window outside min/max bounds")
var ErrNonPositiveWindow = errors.New("window must be positive")
var ErrJournalPathMissing = errors.New("journal enabled without a path")
var ErrNegativeOffset = errors.New("max clock offset must not be negative")
var ErrConfigIsNil = errors.New("config is nil")
