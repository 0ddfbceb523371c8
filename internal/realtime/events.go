package realtime

// Event names written to notification streams.
const (
	EventConnected            = "connected"
	EventUnreadCount          = "unread_count"
	EventNotification         = "notification"
	EventNotificationRead     = "notification_read"
	EventNotificationsAllRead = "notifications_all_read"
	EventHeartbeat            = "heartbeat"
	EventError                = "error"
)

const (
	connectedMessage = "SSE connection established"
	heartbeatMessage = "ping"
)
