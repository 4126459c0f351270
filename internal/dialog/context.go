package dialog

// Keys in the dialog context that the concierge reads and writes. Everything
// else in the context belongs to the dialog service and is passed through.
const (
	KeyNewConversation = "newConversation"
	KeyConversationID  = "conversationId"
	KeyAction          = "action"
)

// Context is the opaque state blob round-tripped with the dialog service.
type Context map[string]any

// NewConversation reports whether the service flagged the start of a new
// logical conversation.
func (c Context) NewConversation() bool {
	v, _ := c[KeyNewConversation].(bool)
	return v
}

func (c Context) SetNewConversation(v bool) {
	c[KeyNewConversation] = v
}

// ConversationID returns the id of the active conversation, or "" if none.
func (c Context) ConversationID() string {
	v, _ := c[KeyConversationID].(string)
	return v
}

func (c Context) SetConversationID(id string) {
	c[KeyConversationID] = id
}

// Action returns the action label attached by the dialog service, or "".
func (c Context) Action() string {
	v, _ := c[KeyAction].(string)
	return v
}

// Clone returns a shallow copy of c. A nil context clones to an empty one.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
