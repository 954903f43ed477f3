// Package cloudapi speaks the WhatsApp Business Cloud API: webhook
// notification payloads, outbound message payloads and the send endpoint.
package cloudapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Webhook constants.
const (
	ObjectWhatsApp = "whatsapp_business_account"
	FieldMessages  = "messages"
)

// Notification is a single webhook delivery.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one update within an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries zero or more inbound messages and status updates.
type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []Contact        `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusUpdate   `json:"statuses,omitempty"`
}

// Metadata identifies the business phone number the change belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to inbound messages.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a message received from a contact.
type InboundMessage struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Button      *ButtonReply `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

// TextBody is the body of a text message.
type TextBody struct {
	Body string `json:"body"`
}

// ButtonReply is sent when a contact taps a template quick-reply button.
type ButtonReply struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Interactive carries replies to interactive button and list messages.
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply,omitempty"`
}

// StatusUpdate reports the delivery state of a message the business sent.
type StatusUpdate struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      []ProviderError `json:"errors,omitempty"`
}

// ProviderError is an error object as returned by the Graph API.
type ProviderError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// ErrEmptyPayload is returned for a body with no JSON content.
var ErrEmptyPayload = errors.New("empty webhook payload")

// ParseNotification decodes a webhook body.
func ParseNotification(data []byte) (*Notification, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// BodyText returns the human-readable text of the message, if any.
func (m InboundMessage) BodyText() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title
	default:
		return ""
	}
}

// UnixMillis converts a provider timestamp (unix seconds as a string) to
// milliseconds, using fallback when it is missing or malformed.
func UnixMillis(ts string, fallback time.Time) int64 {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 || secs > math.MaxInt64/1000 {
		return fallback.UnixMilli()
	}
	return secs * 1000
}

// FirstErrorTitle returns the first error title of a failed status.
func (s StatusUpdate) FirstErrorTitle() string {
	for _, e := range s.Errors {
		if e.Title != "" {
			return e.Title
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return ""
}
