package transport

import (
	"fmt"

	"github.com/google/uuid"
)

// InboundEvent - одно входящее событие от чат-шлюза. Шлюз доставляет
// события одного пользователя по порядку и ровно один раз.
type (
	InboundEvent struct {
		EventID  uuid.UUID `json:"event_id" binding:"required"`
		SenderID int64     `json:"sender_id" binding:"required"`

		Text        string       `json:"text"`
		Payload     *Payload     `json:"payload"`
		Attachments []Attachment `json:"attachments"`
	}

	// Payload - структурированная команда кнопки.
	Payload struct {
		Command  string `json:"command"`
		TicketID int64  `json:"ticket_id,omitempty"`
		FaqID    int64  `json:"faq_id,omitempty"`
		Question string `json:"question,omitempty"`
	}

	Attachment struct {
		Type      string `json:"type"`
		OwnerID   int64  `json:"owner_id"`
		ID        int64  `json:"id"`
		AccessKey string `json:"access_key,omitempty"`
	}

	Keyboard struct {
		Inline  bool            `json:"inline,omitempty"`
		OneTime bool            `json:"one_time,omitempty"`
		Rows    [][]KeyboardKey `json:"rows"`
	}

	KeyboardKey struct {
		Label   string   `json:"label"`
		Color   string   `json:"color,omitempty"`
		Payload *Payload `json:"payload,omitempty"`
	}

	MessageRequest struct {
		RecipientID int64     `json:"recipient_id"`
		Text        string    `json:"text"`
		Attachments []string  `json:"attachments,omitempty"`
		Keyboard    *Keyboard `json:"keyboard,omitempty"`
	}

	HookSetupRequest struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
)

const (
	ColorPrimary   = "primary"
	ColorSecondary = "secondary"
	ColorPositive  = "positive"
	ColorNegative  = "negative"
)

// Имена команд в payload кнопок - часть протокола со шлюзом.
const (
	PayloadLogout        = "logout"
	PayloadShowFaqAnswer = "show_faq_answer"
	PayloadTakeTicket    = "take_ticket"
	PayloadOpenChat      = "open_chat"
	PayloadManageTicket  = "manage_ticket"
	PayloadConfirmSend   = "confirm_send"
	PayloadRoleStudent   = "student"
	PayloadRoleOperator  = "operator"
)

// Token - непрозрачный идентификатор вложения, в таком виде вложения
// хранятся и пересылаются.
func (a Attachment) Token() string {
	if a.AccessKey != "" {
		return fmt.Sprintf("%s%d_%d_%s", a.Type, a.OwnerID, a.ID, a.AccessKey)
	}
	return fmt.Sprintf("%s%d_%d", a.Type, a.OwnerID, a.ID)
}

// AttachmentTokens разворачивает вложения события в список токенов.
func (e *InboundEvent) AttachmentTokens() []string {
	if len(e.Attachments) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(e.Attachments))
	for _, a := range e.Attachments {
		tokens = append(tokens, a.Token())
	}
	return tokens
}

// HasContent сообщает, несет ли событие что-либо для обработки.
func (e *InboundEvent) HasContent() bool {
	return e.Text != "" || e.Payload != nil || len(e.Attachments) > 0
}

// Row - вспомогательный конструктор ряда клавиатуры.
func Row(keys ...KeyboardKey) []KeyboardKey { return keys }
