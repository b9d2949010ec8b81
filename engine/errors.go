package engine

import (
	"errors"
	"fmt"
)

// Rule violations. A defense or offense move failing with one of these is
// rejected and leaves the grid as it was.
var (
	ErrOutOfBounds     = errors.New("out of bounds")
	ErrOccupied        = errors.New("cell is occupied")
	ErrNoWallsLeft     = errors.New("no walls left")
	ErrPathBlocked     = errors.New("would block the path to the goal")
	ErrBombUnavailable = errors.New("timebomb unavailable")
	ErrNotWalkable     = errors.New("cell is not walkable")
)

// ErrorKind classifies a failed exchange with a bot.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindStatus
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindParse:
		return "parse"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BotError is returned by every failed call to a bot.
type BotError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *BotError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *BotError) Unwrap() error {
	return e.Err
}
