package agents

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Priority orders messages in a mailbox.
type Priority uint8

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return fmt.Sprintf("priority(%d)", p)
}

// MessageKind enumerates every message agents exchange.
type MessageKind uint8

const (
	MsgAcknowledgment MessageKind = iota
	MsgMarketEvent                // environment-wide event notification
	MsgServiceOffer               // business → citizen
	MsgPolicyAnnouncement         // government → citizen
	MsgEmergencyAlert             // any → citizen/infrastructure
	MsgPurchaseRequest            // citizen → business
	MsgPurchaseAccepted           // business → citizen
	MsgPurchaseDeclined           // business → citizen
	MsgPartnershipProposal        // business → business
	MsgRegulationChange           // government → business
	MsgComplaint                  // citizen → government
	MsgLobbyRequest               // business → government
	MsgEmergencyReport            // infrastructure → government
	MsgServiceRequest             // citizen → infrastructure
	MsgMaintenanceRequest         // government → infrastructure
)

var messageKindNames = [...]string{
	"acknowledgment", "market_event", "service_offer", "policy_announcement",
	"emergency_alert", "purchase_request", "purchase_accepted", "purchase_declined",
	"partnership_proposal", "regulation_change", "complaint", "lobby_request",
	"emergency_report", "service_request", "maintenance_request",
}

func (k MessageKind) String() string {
	if int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return fmt.Sprintf("message(%d)", k)
}

// MarshalText encodes the kind by name.
func (k MessageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Payload carries the structured content of a message. Fields that do not
// apply to a kind are left zero.
type Payload struct {
	Event     string  `json:"event,omitempty"`     // event kind name for market_event
	Impact    Impact  `json:"impact,omitempty"`    // event impact map
	Sector    Sector  `json:"sector"`              // purchase/service sector
	Quantity  float64 `json:"quantity,omitempty"`  // units requested or granted
	Price     float64 `json:"price,omitempty"`     // unit price quoted or paid
	MaxPrice  float64 `json:"max_price,omitempty"` // buyer's ceiling
	Severity  float64 `json:"severity,omitempty"`  // 0–1 for complaints, emergencies, policies
	Influence float64 `json:"influence,omitempty"` // lobbying weight
	Topic     string  `json:"topic,omitempty"`     // policy or issue name
}

// Message is one inbound item in a receiver's mailbox.
type Message struct {
	From     AgentID     `json:"from"`
	To       AgentID     `json:"to"`
	Kind     MessageKind `json:"kind"`
	Payload  Payload     `json:"payload"`
	Priority Priority    `json:"priority"`
	Created  time.Time   `json:"created"` // simulation time
	Cycle    uint64      `json:"cycle"`

	seq uint64 // arrival order within the mailbox
}

// DefaultMailboxCapacity bounds each mailbox.
const DefaultMailboxCapacity = 256

// Mailbox is a receiver-owned message queue. Any goroutine may Push; only
// the owning agent's task calls Drain.
type Mailbox struct {
	mu       sync.Mutex
	msgs     []Message
	capacity int
	nextSeq  uint64
	dropped  int
}

// NewMailbox creates a mailbox holding at most capacity messages.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{capacity: capacity}
}

// Push appends msg. When full, the oldest message with the lowest priority
// is evicted if it ranks at or below msg; otherwise msg is dropped.
// Returns false when msg was dropped.
func (m *Mailbox) Push(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.msgs) >= m.capacity {
		victim := -1
		for i, old := range m.msgs {
			if victim < 0 || old.Priority < m.msgs[victim].Priority {
				victim = i
			}
		}
		if victim < 0 || m.msgs[victim].Priority > msg.Priority {
			m.dropped++
			return false
		}
		m.msgs = slices.Delete(m.msgs, victim, victim+1)
		m.dropped++
	}

	msg.seq = m.nextSeq
	m.nextSeq++
	m.msgs = append(m.msgs, msg)
	return true
}

// Drain removes and returns every queued message, highest priority first.
// Ties are ordered by sender then kind then arrival, so the result does not
// depend on how concurrent senders interleaved.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	msgs := m.msgs
	m.msgs = nil
	m.mu.Unlock()

	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return msgs
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// Dropped returns how many messages were evicted or rejected.
func (m *Mailbox) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
