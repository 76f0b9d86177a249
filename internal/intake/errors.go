package intake

import "errors"

var (
	ErrAlreadyMounted    = errors.New("intake: already mounted")
	ErrHubClosed         = errors.New("intake: link hub closed")
	ErrSubscriberBacklog = errors.New("intake: subscriber backlog full")
	ErrCellAlreadySet    = errors.New("intake: initiator already set")
	ErrNilInitiator      = errors.New("intake: nil initiator")
	ErrEmptyLink         = errors.New("intake: empty link")
)
