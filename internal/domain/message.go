package domain

import "time"

// MaxMessageLength is the longest accepted message body, in characters.
const MaxMessageLength = 2000

// MessageSender is the sender identity attached to a message for display.
type MessageSender struct {
	ID        string
	FirstName string
	LastName  string
	Role      Role
}

// Message is one entry of an application's conversation thread.
type Message struct {
	ID            string
	ApplicationID string
	SenderID      string
	SenderRole    Role
	Content       string
	IsRead        bool
	CreatedAt     time.Time
	Sender        *MessageSender
}

// CounterpartRoles returns the sender roles whose messages a reader of role r
// marks as read: staff read client messages, clients read staff messages.
func CounterpartRoles(r Role) []Role {
	if r.IsStaff() {
		return []Role{RoleClient}
	}
	return StaffRoles()
}
