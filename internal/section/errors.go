package section

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVote   = errors.New("vote must be +1 or -1")
	ErrEmptyContent  = errors.New("reply text is empty")
	ErrNotExpandable = errors.New("comment has no replies to expand")
	ErrNotLoaded     = errors.New("comment is not loaded in this section")
	// ErrReloaded means the roots were reloaded while a further page was
	// being fetched; the page is dropped.
	ErrReloaded = errors.New("root comments were reloaded")
)

type Op string

const (
	OpLoadRoots     Op = "load_roots"
	OpLoadMoreRoots Op = "load_more_roots"
	OpExpand        Op = "expand"
	OpReply         Op = "reply"
	OpVote          Op = "vote"
	OpRetractVote   Op = "retract_vote"
)

// OperationError reports a failed section operation. The forest is left as it
// was before the operation started.
type OperationError struct {
	Op        Op
	PostID    string
	CommentID int64
	Err       error
}

func (e *OperationError) Error() string {
	if e.CommentID != 0 {
		return fmt.Sprintf("%s on post %s, comment %d: %v", e.Op, e.PostID, e.CommentID, e.Err)
	}
	return fmt.Sprintf("%s on post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
