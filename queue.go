package autopilot

import (
	"context"
	"fmt"

	"go.jetify.com/typeid"
)

// DefaultMailboxCapacity bounds an inbox when no capacity is configured.
// Senders block once the inbox is full, which keeps long-running exchanges
// memory-safe instead of growing without bound.
const DefaultMailboxCapacity = 64

// NewMessageID returns a new prefixed id for queue messages.
func NewMessageID() string {
	id, err := typeid.WithPrefix("msg")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// QueueMessage is one turn-based message between two cooperating roles. A
// message with Terminal set is a sentinel: once dequeued it ends the
// recipient's loop and is mirrored back so both loops terminate.
type QueueMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Payload   string `json:"payload,omitempty"`
	Terminal  bool   `json:"terminal,omitempty"`
}

// Mailbox is a bounded FIFO inbox owned by one role. Delivery is strictly
// first-in-first-out within a single mailbox; no ordering holds across two
// mailboxes.
type Mailbox struct {
	owner string
	ch    chan QueueMessage
}

// NewMailbox creates a mailbox for the named owner. A non-positive capacity
// selects DefaultMailboxCapacity.
func NewMailbox(owner string, capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{owner: owner, ch: make(chan QueueMessage, capacity)}
}

// Owner returns the name of the role that owns this mailbox.
func (m *Mailbox) Owner() string {
	return m.owner
}

// Put enqueues a message, blocking while the mailbox is full.
func (m *Mailbox) Put(ctx context.Context, msg QueueMessage) error {
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next message, blocking while the mailbox is empty.
func (m *Mailbox) Receive(ctx context.Context) (QueueMessage, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	case <-ctx.Done():
		return QueueMessage{}, ctx.Err()
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Participant is one of two cooperating roles exchanging turn-based
// messages. Each participant owns its inbox and holds a reference to its
// peer's inbox for sending.
type Participant struct {
	name         string
	inbox        *Mailbox
	peer         *Mailbox
	sentTerminal bool
}

// NewParticipantPair wires two participants to each other's inboxes.
func NewParticipantPair(a, b string, capacity int) (*Participant, *Participant) {
	inboxA := NewMailbox(a, capacity)
	inboxB := NewMailbox(b, capacity)
	pa := &Participant{name: a, inbox: inboxA, peer: inboxB}
	pb := &Participant{name: b, inbox: inboxB, peer: inboxA}
	return pa, pb
}

// Name returns the participant's role name.
func (p *Participant) Name() string {
	return p.name
}

// Inbox exposes the participant's own mailbox.
func (p *Participant) Inbox() *Mailbox {
	return p.inbox
}

// Send enqueues a payload into the peer's inbox, blocking on backpressure.
func (p *Participant) Send(ctx context.Context, payload string) error {
	return p.peer.Put(ctx, QueueMessage{
		ID:        NewMessageID(),
		Sender:    p.name,
		Recipient: p.peer.Owner(),
		Payload:   payload,
	})
}

// SendTerminal enqueues the end-of-conversation sentinel.
func (p *Participant) SendTerminal(ctx context.Context) error {
	p.sentTerminal = true
	return p.peer.Put(ctx, QueueMessage{
		ID:        NewMessageID(),
		Sender:    p.name,
		Recipient: p.peer.Owner(),
		Terminal:  true,
	})
}

// Run consumes the participant's inbox until a sentinel arrives, invoking
// handle for each payload message. A non-empty reply from handle is sent to
// the peer. When the sentinel is dequeued it is mirrored back
// (sentinel-for-sentinel) unless this participant already sent one, then the
// loop exits.
func (p *Participant) Run(ctx context.Context, handle func(ctx context.Context, msg QueueMessage) (string, error)) error {
	for {
		msg, err := p.inbox.Receive(ctx)
		if err != nil {
			return err
		}
		if msg.Terminal {
			if !p.sentTerminal {
				if err := p.SendTerminal(ctx); err != nil {
					return err
				}
			}
			return nil
		}
		reply, err := handle(ctx, msg)
		if err != nil {
			return fmt.Errorf("%s: handling message from %s: %w", p.name, msg.Sender, err)
		}
		if reply != "" {
			if err := p.Send(ctx, reply); err != nil {
				return err
			}
		}
	}
}
