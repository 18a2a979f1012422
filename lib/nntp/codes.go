package nntp

import "fmt"

// NNTPError is a coded protocol error a handler returns instead of
// writing its own failure line; the dispatcher prints it as the
// command's single response and keeps the session open.
type NNTPError struct {
	Code int
	Msg  string
}

func (e *NNTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

var (
	// ErrBackendOffline is the catch-all for transient store or
	// internal failures; the session continues.
	ErrBackendOffline = &NNTPError{403, "Archive server temporarily offline"}

	ErrNoSuchGroup         = &NNTPError{411, "No such newsgroup"}
	ErrNoGroupSelected     = &NNTPError{412, "No newsgroup selected"}
	ErrNoCurrentArticle    = &NNTPError{420, "Current article number is invalid"}
	ErrNoNextArticle       = &NNTPError{421, "No next article in this group"}
	ErrNoPrevArticle       = &NNTPError{422, "No previous article in this group"}
	ErrNoSuchArticleNumber = &NNTPError{423, "No article with that number"}
	ErrNoSuchArticle       = &NNTPError{430, "No article with that message-id"}

	ErrPostingNotPermitted = &NNTPError{440, "Posting not permitted"}
	ErrPostingFailed       = &NNTPError{441, "Posting failed"}

	ErrPermissionDenied  = &NNTPError{480, "Permission denied"}
	ErrAuthRejected      = &NNTPError{481, "Authentication failed"}
	ErrAuthOutOfSequence = &NNTPError{482, "Authentication commands issued out of sequence"}

	ErrUnknownCommand = &NNTPError{500, "Unknown command"}
	ErrSyntax         = &NNTPError{501, "Syntax error"}
	ErrNotAvailable   = &NNTPError{502, "Command unavailable"}
)

// single-line response formats shared by several handlers
const (
	lineGreetingPosting   = "200 Service available, posting allowed"
	lineGreetingNoPosting = "201 Service available, posting prohibited"
	lineQuit              = "205 Connection closing"
)
