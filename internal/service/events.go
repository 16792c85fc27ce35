package service

// Event names pushed to subscribed clients over the WebSocket hub. The hub
// re-delivers affected records whenever a mutation touches them, which is
// what keeps client queries reactive.
const (
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
	EventConversationDeleted = "conversation.deleted"
	EventUserPresence        = "user.presence"
)

// Notifier delivers events to connected clients. Delivery is best-effort
// and asynchronous with respect to the mutation that triggered it.
type Notifier interface {
	Notify(userIDs []int64, event string, payload any)
	NotifyAll(event string, payload any)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify([]int64, string, any) {}
func (NopNotifier) NotifyAll(string, any)       {}
