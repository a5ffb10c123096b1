package gateway

// noMessagesError signals an empty chat history for 400 mapping.
type noMessagesError struct{}

func (noMessagesError) Error() string { return "no messages" }

// ErrNoMessages constructs the empty-history validation error.
func ErrNoMessages() error { return noMessagesError{} }

// IsNoMessages reports whether err is the empty-history validation error.
func IsNoMessages(err error) bool {
	_, ok := err.(noMessagesError)
	return ok
}
