package mq

const (
	DefaultTopicChatEvent = "chat_event"
	TagMessageSaved       = "message_saved"
	TagMessageRegenerated = "message_regenerated"
	TagSessionDeleted     = "session_deleted"
)
