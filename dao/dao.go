package dao

import (
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("dao")

var (
	// ErrNotTransitionable means the deal was not in any of the expected
	// statuses anymore. Races between the watcher and manual actions end
	// here and callers treat it as a benign no-op.
	ErrNotTransitionable = xerrors.New("deal not transitionable")

	ErrInsufficientBalance = xerrors.New("insufficient balance")

	ErrDealNotFound = xerrors.New("deal not found")
)
