package telegram

// Update is an incoming Bot API update. Only callback queries are routed to
// paused scenarios; other update kinds are ignored by the webhook.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// CallbackQuery is a pressed inline-keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
}

// User identifies the Telegram account that pressed the button.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Message is the message the pressed keyboard was attached to.
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      Chat  `json:"chat"`
}

// Chat identifies the conversation.
type Chat struct {
	ID int64 `json:"id"`
}
