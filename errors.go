package cachegate

import "errors"

var (
	// ErrNoDateHeader mirrors the teacher's age.go sentinel: a stored
	// reply with no Date header cannot have its Age computed.
	ErrNoDateHeader = errors.New("cachegate: reply has no Date header")

	// ErrContextNotAttached is returned by GetMoreData when called before
	// the context has an attached entry or a dispatch has happened.
	ErrContextNotAttached = errors.New("cachegate: reply context has no attached entry")

	// ErrDeleting is returned by any entry point once the context's
	// deleting flag is set (spec.md §3 invariant 6, §5 cancellation).
	ErrDeleting = errors.New("cachegate: reply context is being torn down")

	// ErrNoNextNode is returned by GetMoreData when no downstream stream
	// node is attached.
	ErrNoNextNode = errors.New("cachegate: no next stream node attached")

	// ErrBodyTooLarge flags the §7 "body too large" error kind.
	ErrBodyTooLarge = errors.New("cachegate: reply body exceeds configured limit")

	// ErrVaryLoop flags the §7 "vary loop" error kind (store's vary
	// evaluator kept returning CANCEL).
	ErrVaryLoop = errors.New("cachegate: vary re-lookup loop detected")
)
