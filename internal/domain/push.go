package domain

// PushPayload is a push message delivered to the background context.
type PushPayload struct {
	Notification *PushNotification `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// PushNotification is the display part of a push message.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Registration is the push registration currently held by the extension's service worker.
type Registration struct {
	Token string `json:"token"`
}

// Notification is a user-visible message shown by the host runtime.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Icon    string `json:"icon,omitempty"`

	// Recipient is the push token of the device that should show it.
	Recipient string `json:"-"`
}
