package bot

import (
	"strings"

	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/transport"
)

// CommandKind - распознанная команда входящего события. Надписи
// кнопок переводятся в команды один раз здесь, на границе транспорта:
// обработчики состояний строк интерфейса не видят.
type CommandKind int

const (
	CmdNone CommandKind = iota

	// команды payload-кнопок, работают из любого состояния
	CmdLogout
	CmdShowFaqAnswer
	CmdTakeTicket
	CmdOpenChat
	CmdManageTicket
	CmdConfirmSend

	// выбор роли при регистрации
	CmdRoleStudent
	CmdRoleOperator

	// навигация
	CmdMainMenu
	CmdBack
	CmdLeaveChat
	CmdCloseTicket

	// пункты меню
	CmdAskQuestion
	CmdMyTickets
	CmdProfile
	CmdQueue
	CmdDialogs

	// профиль и заявки
	CmdEdit
	CmdDeleteProfile
	CmdDeleteTicket
	CmdEditTicketText
	CmdYes
	CmdNo
	CmdFIO
	CmdGroup
)

type Command struct {
	Kind     CommandKind
	TicketID int64
	FaqID    int64
	Question string
}

// Global сообщает, перехватывает ли команда обработку текущего
// состояния. Кнопки меню обязаны работать, даже когда пользователь
// застрял посреди какого-нибудь сценария.
func (c Command) Global() bool {
	switch c.Kind {
	case CmdLogout, CmdShowFaqAnswer, CmdTakeTicket, CmdOpenChat, CmdManageTicket, CmdConfirmSend:
		return true
	}
	return false
}

// ResolveCommand разбирает событие: сначала структурированный payload,
// затем известные надписи кнопок.
func ResolveCommand(ev *transport.InboundEvent, rep *replies.Replies) Command {
	if ev.Payload != nil {
		switch ev.Payload.Command {
		case transport.PayloadLogout:
			return Command{Kind: CmdLogout}
		case transport.PayloadShowFaqAnswer:
			return Command{Kind: CmdShowFaqAnswer, FaqID: ev.Payload.FaqID}
		case transport.PayloadTakeTicket:
			return Command{Kind: CmdTakeTicket, TicketID: ev.Payload.TicketID}
		case transport.PayloadOpenChat:
			return Command{Kind: CmdOpenChat, TicketID: ev.Payload.TicketID}
		case transport.PayloadManageTicket:
			return Command{Kind: CmdManageTicket, TicketID: ev.Payload.TicketID}
		case transport.PayloadConfirmSend:
			return Command{Kind: CmdConfirmSend, Question: ev.Payload.Question}
		case transport.PayloadRoleStudent:
			return Command{Kind: CmdRoleStudent}
		case transport.PayloadRoleOperator:
			return Command{Kind: CmdRoleOperator}
		}
	}

	text := strings.TrimSpace(ev.Text)
	switch text {
	case rep.Labels.RoleStudent:
		return Command{Kind: CmdRoleStudent}
	case rep.Labels.RoleTutor:
		return Command{Kind: CmdRoleOperator}
	case rep.Labels.Home, rep.Labels.MainMenu:
		return Command{Kind: CmdMainMenu}
	case rep.Labels.Back:
		return Command{Kind: CmdBack}
	case rep.Labels.LeaveChat, rep.Labels.BackToList:
		return Command{Kind: CmdLeaveChat}
	case rep.Labels.CloseTutor, rep.Labels.CloseStudent:
		return Command{Kind: CmdCloseTicket}
	case rep.Labels.AskQuestion:
		return Command{Kind: CmdAskQuestion}
	case rep.Labels.MyTickets:
		return Command{Kind: CmdMyTickets}
	case rep.Labels.Profile:
		return Command{Kind: CmdProfile}
	case rep.Labels.Queue:
		return Command{Kind: CmdQueue}
	case rep.Labels.Dialogs:
		return Command{Kind: CmdDialogs}
	case rep.Labels.Edit:
		return Command{Kind: CmdEdit}
	case rep.Labels.DeleteUser:
		return Command{Kind: CmdDeleteProfile}
	case rep.Labels.Logout:
		return Command{Kind: CmdLogout}
	case rep.Labels.DeleteTicket:
		return Command{Kind: CmdDeleteTicket}
	case rep.Labels.EditText:
		return Command{Kind: CmdEditTicketText}
	case rep.Labels.Yes:
		return Command{Kind: CmdYes}
	case rep.Labels.No:
		return Command{Kind: CmdNo}
	case rep.Labels.FIO:
		return Command{Kind: CmdFIO}
	case rep.Labels.Group, rep.Labels.Groups:
		return Command{Kind: CmdGroup}
	}

	return Command{Kind: CmdNone}
}
