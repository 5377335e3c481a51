package domain

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrPollNotFound   = errors.New("poll not found")
	ErrPollExists     = errors.New("poll already exists")
	ErrPollClosed     = errors.New("poll is closed")
	ErrOptionNotFound = errors.New("option not found in poll")
	ErrOptionExists   = errors.New("option already exists")
	ErrAlreadyVoted   = errors.New("voter has already voted in this poll")
	ErrIDsExhausted   = errors.New("identifier space exhausted")
)
