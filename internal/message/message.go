package message

// This file provides the common data objects used by the rest of the
// program.

import "time"

// Ref identifies a single message in the remote mailbox and carries
// just enough metadata to place it in a time bucket before its content
// has been fetched.
type Ref struct {
	// The permanent and unique ID of the message in the remote
	// mailbox.
	ID string

	// The message's internal date as reported by the mailbox.
	// May be the zero time for messages the mailbox could not
	// date; those land in the unknown bucket.
	Timestamp time.Time

	// An estimated size of the message (bytes).
	SizeEstimate int64
}

// Body is a complete message, including the raw content.
type Body struct {
	Ref

	// The entire email message in RFC 2822 format.
	Raw []byte
}
