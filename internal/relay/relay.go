package relay

import (
	"context"
	"errors"
	"fmt"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/logger"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/transport"
)

// Store - операции хранилища, нужные ретрансляции.
type Store interface {
	GetUser(ctx context.Context, id int64) (*database.User, error)
	UpdateUser(ctx context.Context, id int64, changes map[string]interface{}) error
	UpdateUserIfActiveTicket(ctx context.Context, id, ticketID int64, changes map[string]interface{}) (bool, error)

	GetTicket(ctx context.Context, id int64) (*database.Ticket, error)
	UpdateTicket(ctx context.Context, id int64, changes map[string]interface{}) error
	ClaimTicket(ctx context.Context, ticketID, operatorID int64) error

	InsertMessage(ctx context.Context, m *database.Message) error
	MarkMessagesRead(ctx context.Context, ticketID, notSenderID int64) error
	ListUnreadMessages(ctx context.Context, ticketID, notSenderID int64) ([]database.Message, error)
	CountUnread(ctx context.Context, ticketID, senderID int64) (int64, error)
}

// HopResult - как завершилась пересылка одного сообщения.
type HopResult int

const (
	// доставлено собеседнику напрямую
	HopDelivered HopResult = iota
	// собеседник не в чате, сообщение легло в журнал
	HopQueued
	// тикет закрыт или исчез, отправитель выкинут в меню
	HopStale
)

// Relay пересылает сообщения между сторонами тикета. Журнал сообщений
// в БД - источник истины, живая доставка поверх него best-effort.
type Relay struct {
	store  Store
	sender transport.Sender
}

func New(store Store, sender transport.Sender) *Relay {
	return &Relay{store: store, sender: sender}
}

// Forward - один прыжок ретрансляции: от участника чата его
// собеседнику по активному тикету.
func (r *Relay) Forward(ctx context.Context, sender *database.User, text string, attachments []string) (HopResult, error) {
	if sender.ActiveTicketID == nil {
		return HopStale, r.evict(ctx, sender.ID)
	}
	ticketID := *sender.ActiveTicketID

	ticket, err := r.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return HopStale, r.evict(ctx, sender.ID)
		}
		return HopStale, err
	}
	// в закрытый тикет не ретранслируем
	if ticket.Status == database.TicketClosed {
		return HopStale, r.evict(ctx, sender.ID)
	}

	counterpartID := counterpart(ticket, sender)

	// журнал пишется всегда, даже если доставить некому
	msg := &database.Message{
		TicketID:    ticket.ID,
		SenderID:    sender.ID,
		Text:        text,
		Attachments: attachments,
	}
	if err := r.store.InsertMessage(ctx, msg); err != nil {
		return HopQueued, fmt.Errorf("insert message: %w", err)
	}

	if counterpartID == nil {
		return HopQueued, nil
	}

	rec, err := r.store.GetUser(ctx, *counterpartID)
	if err != nil {
		logger.Warning("relay - get counterpart", err)
		return HopQueued, nil
	}

	if rec.ActiveTicketID != nil && *rec.ActiveTicketID == ticket.ID {
		// собеседник в этом же чате - доставляем сразу
		if err := r.sender.SendWithAttachments(ctx, rec.ID, text, attachments, nil); err != nil {
			// присутствие не гарантирует доставку
			logger.Warning("relay - direct send", err)
			return HopQueued, nil
		}
		if err := r.store.MarkMessagesRead(ctx, ticket.ID, rec.ID); err != nil {
			logger.Warning("relay - mark read", err)
		}
		return HopDelivered, nil
	}

	// собеседник в фоне: уведомляем только при первом непрочитанном,
	// дальше копим молча, пока он не откроет чат
	unread, err := r.store.CountUnread(ctx, ticket.ID, sender.ID)
	if err != nil {
		logger.Warning("relay - count unread", err)
		return HopQueued, nil
	}
	if unread == 1 {
		rep := replies.Get()
		from := rep.Texts.FromTutor
		if sender.Role == database.RoleStudent {
			from = fmt.Sprintf(rep.Texts.FromStudentFmt, sender.FullName)
		}
		kb := connectKeyboard(&rep, ticket.ID)
		if err := r.sender.Send(ctx, rec.ID, fmt.Sprintf(rep.Texts.NotifyFmt, from, ticket.ID), kb); err != nil {
			logger.Warning("relay - notify", err)
		}
	}

	return HopQueued, nil
}

// Close завершает тикет по команде любой из сторон. Собеседник
// выкидывается из чата, только если все еще привязан к этому тикету.
func (r *Relay) Close(ctx context.Context, closer *database.User) error {
	if closer.ActiveTicketID == nil {
		return r.evict(ctx, closer.ID)
	}
	ticketID := *closer.ActiveTicketID

	if err := r.store.UpdateTicket(ctx, ticketID, map[string]interface{}{"status": database.TicketClosed}); err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}

	ticket, err := r.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	counterpartID := counterpart(ticket, closer)
	if counterpartID != nil {
		if _, err := r.store.UpdateUserIfActiveTicket(ctx, *counterpartID, ticket.ID, map[string]interface{}{
			"state":            database.StateMainMenu,
			"active_ticket_id": nil,
		}); err != nil {
			logger.Warning("relay - evict counterpart", err)
		}

		rep := replies.Get()
		if err := r.sender.Send(ctx, *counterpartID, fmt.Sprintf(rep.Texts.TicketClosedFmt, ticket.ID), nil); err != nil {
			logger.Warning("relay - close notify", err)
		}
	}

	return r.evict(ctx, closer.ID)
}

// Claim - оператор берет открытый тикет. Гонка двух операторов
// разрешается условным обновлением в хранилище.
func (r *Relay) Claim(ctx context.Context, operator *database.User, ticketID int64) (*database.Ticket, error) {
	if err := r.store.ClaimTicket(ctx, ticketID, operator.ID); err != nil {
		return nil, err
	}

	if err := r.store.UpdateUser(ctx, operator.ID, map[string]interface{}{
		"state":            database.StateChatMode,
		"active_ticket_id": ticketID,
	}); err != nil {
		return nil, err
	}

	ticket, err := r.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	rep := replies.Get()
	kb := &transport.Keyboard{
		Inline: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{
				Label:   fmt.Sprintf(rep.Labels.GoToFmt, ticket.ID),
				Color:   transport.ColorPositive,
				Payload: &transport.Payload{Command: transport.PayloadOpenChat, TicketID: ticket.ID},
			}),
		},
	}
	if err := r.sender.Send(ctx, ticket.StudentID, fmt.Sprintf(rep.Texts.TutorJoinedFmt, ticket.ID), kb); err != nil {
		logger.Warning("relay - claim notify", err)
	}

	return ticket, nil
}

// Focus переводит пользователя в чат тикета: проверяет, что тикет
// жив, привязывает пользователя и доотправляет накопленные
// непрочитанные сообщения собеседника.
func (r *Relay) Focus(ctx context.Context, user *database.User, ticketID int64) error {
	ticket, err := r.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status == database.TicketClosed {
		return database.ErrNotFound
	}

	if err := r.store.UpdateUser(ctx, user.ID, map[string]interface{}{
		"state":            database.StateChatMode,
		"active_ticket_id": ticketID,
	}); err != nil {
		return err
	}

	rep := replies.Get()
	if err := r.sender.Send(ctx, user.ID, fmt.Sprintf(rep.Texts.ChatActiveFmt, ticketID), chatKeyboard(&rep, user.Role)); err != nil {
		logger.Warning("relay - focus send", err)
	}

	msgs, err := r.store.ListUnreadMessages(ctx, ticketID, user.ID)
	if err != nil {
		logger.Warning("relay - list unread", err)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := r.sender.Send(ctx, user.ID, rep.Texts.NewMessages, nil); err != nil {
		logger.Warning("relay - history send", err)
	}
	for _, m := range msgs {
		if err := r.sender.SendWithAttachments(ctx, user.ID, m.Text, m.Attachments, nil); err != nil {
			logger.Warning("relay - history send", err)
		}
	}
	if err := r.store.MarkMessagesRead(ctx, ticketID, user.ID); err != nil {
		logger.Warning("relay - mark read", err)
	}
	return nil
}

// Leave выводит пользователя из чата без закрытия тикета.
func (r *Relay) Leave(ctx context.Context, userID int64) error {
	return r.evict(ctx, userID)
}

func (r *Relay) evict(ctx context.Context, userID int64) error {
	return r.store.UpdateUser(ctx, userID, map[string]interface{}{
		"state":            database.StateMainMenu,
		"active_ticket_id": nil,
	})
}

func counterpart(t *database.Ticket, u *database.User) *int64 {
	if u.Role == database.RoleOperator {
		return &t.StudentID
	}
	return t.OperatorID
}

func connectKeyboard(rep *replies.Replies, ticketID int64) *transport.Keyboard {
	return &transport.Keyboard{
		Inline: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{
				Label:   fmt.Sprintf(rep.Labels.ConnectFmt, ticketID),
				Color:   transport.ColorPositive,
				Payload: &transport.Payload{Command: transport.PayloadOpenChat, TicketID: ticketID},
			}),
		},
	}
}

func chatKeyboard(rep *replies.Replies, role database.Role) *transport.Keyboard {
	if role == database.RoleOperator {
		return &transport.Keyboard{
			Rows: [][]transport.KeyboardKey{
				transport.Row(transport.KeyboardKey{Label: rep.Labels.CloseTutor, Color: transport.ColorNegative}),
				transport.Row(transport.KeyboardKey{Label: rep.Labels.BackToList, Color: transport.ColorSecondary}),
			},
		}
	}
	return &transport.Keyboard{
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.CloseStudent, Color: transport.ColorNegative}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.LeaveChat, Color: transport.ColorSecondary}),
		},
	}
}
