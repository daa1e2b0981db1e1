package client

import (
	"github.com/juju/errors"
)

var (
	ErrClientClosed = errors.New("client is closed")
	ErrFlushAborted = errors.New("flush aborted")
	ErrNoRoute      = errors.New("no route for key")
)
