package queue

import (
	"context"
	"errors"
)

// ErrNoMessage - nothing arrived before the receive wait ran out
var ErrNoMessage = errors.New("no message received")

// Config - unified configuration for queue service
type Config struct {
	Name string
	URL  string

	//AWS specified
	Region             string
	CredentialsFile    string
	CredentialsProfile string
	Retries            int

	// Visibility - seconds a received message stays hidden before redelivery
	Visibility int
}

// RecvMessage unified presentation for queue message
type RecvMessage struct {
	ID      string
	Body    string
	Handler string
}

// Client interface for queue interaction (SQS Based)
type Client interface {
	SendMessage(ctx context.Context, message string) error
	ReceiveMessage(ctx context.Context) (*RecvMessage, error)
	Acknowledge(ctx context.Context, message *RecvMessage) error
}
