// Package delivery defines the post-verification side-effect collaborators:
// pushing session credentials to their destination and subscribing the paired
// number to the announcement channel.
package delivery

import "context"

// CredentialSink delivers the credential blob produced by a verified handshake.
type CredentialSink interface {
	Deliver(ctx context.Context, phoneNumber string, blob []byte) error
}

// ChannelSubscriber subscribes the paired number to the announcement channel.
type ChannelSubscriber interface {
	Subscribe(ctx context.Context, phoneNumber string) error
}
