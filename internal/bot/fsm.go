package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/logger"
	"tutor-support-bot/internal/relay"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/retrieval"
	"tutor-support-bot/internal/transport"

	"github.com/lib/pq"
)

const listLimit = 5

// dispatch выбирает обработчик по сохраненному состоянию. Неизвестное
// состояние (например, после удаления старых веток) чинится возвратом
// в главное меню.
func (b *Bot) dispatch(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch user.State {
	case database.StateRegistrationStart:
		return b.stateRegistrationStart(ctx, user, cmd, rep)
	case database.StateRegStudentFIO:
		return b.stateRegStudentFIO(ctx, user, ev, cmd, rep)
	case database.StateRegStudentGroup:
		return b.stateRegStudentGroup(ctx, user, ev, cmd, rep)
	case database.StateRegOperatorCode:
		return b.stateRegOperatorCode(ctx, user, ev, cmd, rep)

	case database.StateMainMenu:
		return b.stateMainMenu(ctx, user, cmd, rep)
	case database.StateAskQuestionMode:
		return b.stateAskQuestion(ctx, user, ev, cmd, rep)
	case database.StateChatMode:
		return b.stateChat(ctx, user, ev, cmd, rep)

	case database.StateProfileView:
		return b.stateProfileView(ctx, user, cmd, rep)
	case database.StateProfileEditSelect:
		return b.stateProfileEditSelect(ctx, user, cmd, rep)
	case database.StateEditStudentFIO, database.StateEditTutorFIO:
		return b.stateEditFIO(ctx, user, ev, cmd, rep)
	case database.StateEditStudentGroup:
		return b.stateEditStudentGroup(ctx, user, ev, cmd, rep)
	case database.StateEditTutorGroups:
		return b.stateEditTutorGroups(ctx, user, ev, cmd, rep)
	case database.StateProfileDeleteConfirm:
		return b.stateProfileDeleteConfirm(ctx, user, cmd, rep)

	case database.StateTicketManageMenu:
		return b.stateTicketManageMenu(ctx, user, cmd, rep)
	case database.StateTicketEditText:
		return b.stateTicketEditText(ctx, user, ev, cmd, rep)
	}

	logger.Warning("Unknown user state", user.ID, user.State)
	return b.toMainMenu(ctx, user)
}

// --- регистрация ---

func (b *Bot) stateRegistrationStart(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdRoleStudent:
		if err := b.setState(ctx, user, database.StateRegStudentFIO, map[string]interface{}{
			"role": database.RoleStudent,
		}); err != nil {
			return err
		}
		user.Role = database.RoleStudent
		return b.sender.Send(ctx, user.ID, rep.Texts.AskFIO, backKeyboard(rep))

	case CmdRoleOperator:
		if err := b.setState(ctx, user, database.StateRegOperatorCode, map[string]interface{}{
			"role": database.RoleOperator,
		}); err != nil {
			return err
		}
		user.Role = database.RoleOperator
		return b.sender.Send(ctx, user.ID, rep.Texts.AskCode, backKeyboard(rep))
	}

	return b.sender.Send(ctx, user.ID, rep.Texts.Welcome, roleKeyboard(rep))
}

func (b *Bot) stateRegStudentFIO(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	if cmd.Kind == CmdBack {
		return b.toRoleSelect(ctx, user, rep)
	}

	fio := strings.TrimSpace(ev.Text)
	if !ValidFIO(fio) {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadFIO, nil)
	}

	if err := b.setState(ctx, user, database.StateRegStudentGroup, map[string]interface{}{
		"full_name": fio,
	}); err != nil {
		return err
	}
	user.FullName = fio
	return b.sender.Send(ctx, user.ID, rep.Texts.AskGroup, backKeyboard(rep))
}

func (b *Bot) stateRegStudentGroup(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	if cmd.Kind == CmdBack {
		if err := b.setState(ctx, user, database.StateRegStudentFIO, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.AskFIO, backKeyboard(rep))
	}

	group := NormalizeGroup(ev.Text)
	if !ValidGroup(group) {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadGroup, nil)
	}

	if err := b.setState(ctx, user, database.StateMainMenu, map[string]interface{}{
		"group_number": group,
	}); err != nil {
		return err
	}
	user.GroupNumber = group

	tutorName := rep.Texts.TutorNone
	tutor, err := b.store.FindTutorForGroup(ctx, group)
	if err == nil {
		tutorName = tutor.TutorName
	} else if !errors.Is(err, database.ErrNotFound) {
		logger.Warning("bot - find tutor", err)
	}

	if err := b.sender.Send(ctx, user.ID, fmt.Sprintf(rep.Texts.RegDoneFmt, tutorName), nil); err != nil {
		logger.Warning("bot - reg done notify", err)
	}
	return b.RenderMainMenu(ctx, user)
}

func (b *Bot) stateRegOperatorCode(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	if cmd.Kind == CmdBack {
		return b.toRoleSelect(ctx, user, rep)
	}

	code := strings.TrimSpace(ev.Text)

	oc, err := b.store.GetOperatorCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadCode, nil)
	}
	if err != nil {
		return fmt.Errorf("get operator code: %w", err)
	}

	if err := b.setState(ctx, user, database.StateMainMenu, map[string]interface{}{
		"full_name":   oc.TutorName,
		"linked_code": oc.Code,
	}); err != nil {
		return err
	}
	user.FullName = oc.TutorName
	user.LinkedCode = oc.Code

	if err := b.sender.Send(ctx, user.ID, rep.Texts.RegDoneTutor, nil); err != nil {
		logger.Warning("bot - reg done notify", err)
	}
	return b.RenderMainMenu(ctx, user)
}

// toRoleSelect возвращает незарегистрированного пользователя к выбору
// роли, стирая выбранную ветку.
func (b *Bot) toRoleSelect(ctx context.Context, user *database.User, rep *replies.Replies) error {
	if err := b.setState(ctx, user, database.StateRegistrationStart, map[string]interface{}{
		"role": database.Role(""),
	}); err != nil {
		return err
	}
	user.Role = ""
	return b.sender.Send(ctx, user.ID, rep.Texts.Welcome, roleKeyboard(rep))
}

// --- главное меню ---

func (b *Bot) stateMainMenu(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdAskQuestion:
		if user.Role != database.RoleStudent {
			break
		}
		if err := b.setState(ctx, user, database.StateAskQuestionMode, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.AskQuestion, homeKeyboard(rep))

	case CmdMyTickets:
		if user.Role != database.RoleStudent {
			break
		}
		return b.showStudentTickets(ctx, user, rep)

	case CmdProfile:
		return b.showProfile(ctx, user, rep)

	case CmdQueue:
		if user.Role != database.RoleOperator {
			break
		}
		return b.showQueue(ctx, user, rep)

	case CmdDialogs:
		if user.Role != database.RoleOperator {
			break
		}
		return b.showDialogs(ctx, user, rep)
	}

	return b.RenderMainMenu(ctx, user)
}

func (b *Bot) showStudentTickets(ctx context.Context, user *database.User, rep *replies.Replies) error {
	tickets, err := b.store.ListTicketsForStudent(ctx, user.ID, listLimit)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	if len(tickets) == 0 {
		return b.sender.Send(ctx, user.ID, rep.Texts.NoTickets, nil)
	}

	var sb strings.Builder
	sb.WriteString(rep.Texts.TicketsTitle)
	kb := &transport.Keyboard{Inline: true}
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("\n%s #%d: %s", statusGlyph(t.Status), t.ID, truncate(t.Question, 40)))
		// редактируются только заявки, которые еще никто не взял
		if t.Status == database.TicketOpen {
			kb.Rows = append(kb.Rows, transport.Row(transport.KeyboardKey{
				Label:   fmt.Sprintf(rep.Labels.ManageFmt, t.ID),
				Color:   transport.ColorPrimary,
				Payload: &transport.Payload{Command: transport.PayloadManageTicket, TicketID: t.ID},
			}))
		}
		if t.Status == database.TicketActive {
			kb.Rows = append(kb.Rows, transport.Row(transport.KeyboardKey{
				Label:   fmt.Sprintf(rep.Labels.GoToFmt, t.ID),
				Color:   transport.ColorPositive,
				Payload: &transport.Payload{Command: transport.PayloadOpenChat, TicketID: t.ID},
			}))
		}
	}
	if len(kb.Rows) == 0 {
		kb = nil
	}
	return b.sender.Send(ctx, user.ID, sb.String(), kb)
}

func (b *Bot) showQueue(ctx context.Context, user *database.User, rep *replies.Replies) error {
	oc, err := b.store.GetOperatorCode(ctx, user.LinkedCode)
	if err != nil {
		return fmt.Errorf("get operator code: %w", err)
	}

	tickets, err := b.store.ListOpenTicketsForGroups(ctx, oc.AllowedGroups, listLimit)
	if err != nil {
		return fmt.Errorf("list open tickets: %w", err)
	}
	if len(tickets) == 0 {
		return b.sender.Send(ctx, user.ID, rep.Texts.QueueEmpty, nil)
	}

	var sb strings.Builder
	sb.WriteString(rep.Texts.QueueTitle)
	kb := &transport.Keyboard{Inline: true}
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("\n#%d [%s] %s: %s", t.ID, t.GroupNumber, t.FullName, truncate(t.Question, 40)))
		kb.Rows = append(kb.Rows, transport.Row(transport.KeyboardKey{
			Label:   fmt.Sprintf(rep.Labels.TakeFmt, t.ID),
			Color:   transport.ColorPositive,
			Payload: &transport.Payload{Command: transport.PayloadTakeTicket, TicketID: t.ID},
		}))
	}
	return b.sender.Send(ctx, user.ID, sb.String(), kb)
}

func (b *Bot) showDialogs(ctx context.Context, user *database.User, rep *replies.Replies) error {
	tickets, err := b.store.ListActiveTicketsForOperator(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list active tickets: %w", err)
	}
	if len(tickets) == 0 {
		return b.sender.Send(ctx, user.ID, rep.Texts.DialogsEmpty, nil)
	}

	var sb strings.Builder
	sb.WriteString(rep.Texts.DialogsTitle)
	kb := &transport.Keyboard{Inline: true}
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("\n#%d [%s] %s: %s", t.ID, t.GroupNumber, t.FullName, truncate(t.Question, 40)))
		kb.Rows = append(kb.Rows, transport.Row(transport.KeyboardKey{
			Label:   fmt.Sprintf(rep.Labels.ConnectFmt, t.ID),
			Color:   transport.ColorPositive,
			Payload: &transport.Payload{Command: transport.PayloadOpenChat, TicketID: t.ID},
		}))
	}
	return b.sender.Send(ctx, user.ID, sb.String(), kb)
}

// --- поиск ответа ---

func (b *Bot) stateAskQuestion(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdMainMenu, CmdBack:
		return b.toMainMenu(ctx, user)
	case CmdProfile:
		if err := b.setState(ctx, user, database.StateMainMenu, nil); err != nil {
			return err
		}
		return b.showProfile(ctx, user, rep)
	case CmdMyTickets:
		if err := b.setState(ctx, user, database.StateMainMenu, nil); err != nil {
			return err
		}
		return b.showStudentTickets(ctx, user, rep)
	case CmdAskQuestion:
		return b.sender.Send(ctx, user.ID, rep.Texts.AskQuestion, homeKeyboard(rep))
	}

	question := strings.TrimSpace(ev.Text)
	if question == "" {
		return b.sender.Send(ctx, user.ID, rep.Texts.AskQuestion, homeKeyboard(rep))
	}

	res := b.search.Ask(ctx, question, func() {
		// предупреждаем до медленной векторной стадии
		if err := b.sender.Send(ctx, user.ID, rep.Texts.Searching, nil); err != nil {
			logger.Warning("bot - searching notify", err)
		}
	})

	switch res.Disposition {
	case retrieval.Answered:
		text := fmt.Sprintf(rep.Texts.FaqAnswerFmt, res.Answer.Question, res.Answer.Answer)
		return b.sender.Send(ctx, user.ID, text, forwardKeyboard(rep, question, nil))

	case retrieval.Disambiguate:
		title := rep.Texts.FoundSemantic
		if res.Source == retrieval.SourceLexical {
			title = rep.Texts.FoundLexical
		}
		return b.sender.Send(ctx, user.ID, title, forwardKeyboard(rep, question, res.Candidates))
	}

	return b.sender.Send(ctx, user.ID, rep.Texts.NotFound, forwardKeyboard(rep, question, nil))
}

// --- чат по тикету ---

func (b *Bot) stateChat(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdCloseTicket:
		if err := b.relay.Close(ctx, user); err != nil {
			return fmt.Errorf("close ticket: %w", err)
		}
		user.State = database.StateMainMenu
		user.ActiveTicketID = nil
		return b.RenderMainMenu(ctx, user)

	case CmdLeaveChat, CmdMainMenu:
		if err := b.relay.Leave(ctx, user.ID); err != nil {
			return err
		}
		user.State = database.StateMainMenu
		user.ActiveTicketID = nil
		return b.RenderMainMenu(ctx, user)
	}

	text := ev.Text
	attachments := ev.AttachmentTokens()
	if text == "" && len(attachments) > 0 {
		text = rep.Texts.Attachment
	}

	hop, err := b.relay.Forward(ctx, user, text, attachments)
	if err != nil {
		logger.Warning("bot - forward", err)
	}
	if hop == relay.HopStale {
		user.State = database.StateMainMenu
		user.ActiveTicketID = nil
		if err := b.sender.Send(ctx, user.ID, rep.Texts.TicketClosed, nil); err != nil {
			logger.Warning("bot - stale notify", err)
		}
		return b.RenderMainMenu(ctx, user)
	}
	return nil
}

// --- профиль ---

func (b *Bot) showProfile(ctx context.Context, user *database.User, rep *replies.Replies) error {
	if err := b.setState(ctx, user, database.StateProfileView, nil); err != nil {
		return err
	}

	var text string
	if user.Role == database.RoleOperator {
		groups := ""
		oc, err := b.store.GetOperatorCode(ctx, user.LinkedCode)
		if err == nil {
			groups = strings.Join(oc.AllowedGroups, ", ")
		} else {
			logger.Warning("bot - get operator code", err)
		}
		text = fmt.Sprintf(rep.Texts.ProfileTutorFmt, user.FullName, groups)
	} else {
		tutorName := rep.Texts.TutorNone
		tutor, err := b.store.FindTutorForGroup(ctx, user.GroupNumber)
		if err == nil {
			tutorName = tutor.TutorName
		} else if !errors.Is(err, database.ErrNotFound) {
			logger.Warning("bot - find tutor", err)
		}
		text = fmt.Sprintf(rep.Texts.ProfileStudentFmt, user.FullName, user.GroupNumber, tutorName)
	}

	return b.sender.Send(ctx, user.ID, text, profileKeyboard(rep, user.Role))
}

func (b *Bot) stateProfileView(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdEdit:
		if err := b.setState(ctx, user, database.StateProfileEditSelect, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.WhatToEdit, editSelectKeyboard(rep, user.Role))

	case CmdDeleteProfile:
		if user.Role != database.RoleStudent {
			break
		}
		if err := b.setState(ctx, user, database.StateProfileDeleteConfirm, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.DeleteConfirm, confirmKeyboard(rep))

	case CmdMainMenu, CmdBack:
		return b.toMainMenu(ctx, user)
	}

	// нераспознанный ввод перерисовывает профиль без смены состояния
	return b.showProfile(ctx, user, rep)
}

func (b *Bot) stateProfileEditSelect(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdFIO:
		next := database.StateEditStudentFIO
		if user.Role == database.RoleOperator {
			next = database.StateEditTutorFIO
		}
		if err := b.setState(ctx, user, next, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.NewFIO, backKeyboard(rep))

	case CmdGroup:
		next := database.StateEditStudentGroup
		if user.Role == database.RoleOperator {
			next = database.StateEditTutorGroups
		}
		if err := b.setState(ctx, user, next, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.NewGroup, backKeyboard(rep))

	case CmdBack:
		return b.showProfile(ctx, user, rep)
	case CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	return b.sender.Send(ctx, user.ID, rep.Texts.WhatToEdit, editSelectKeyboard(rep, user.Role))
}

func (b *Bot) stateEditFIO(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdBack:
		return b.showProfile(ctx, user, rep)
	case CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	fio := strings.TrimSpace(ev.Text)
	if !ValidFIO(fio) {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadFIO, nil)
	}

	if err := b.store.UpdateUser(ctx, user.ID, map[string]interface{}{"full_name": fio}); err != nil {
		return fmt.Errorf("update fio: %w", err)
	}
	user.FullName = fio

	// имя тьютора живет и в коде, по которому регистрируются
	if user.Role == database.RoleOperator && user.LinkedCode != "" {
		if err := b.store.UpdateOperatorCode(ctx, user.LinkedCode, map[string]interface{}{"tutor_name": fio}); err != nil {
			logger.Warning("bot - update operator code", err)
		}
	}

	if err := b.sender.Send(ctx, user.ID, rep.Texts.Updated, nil); err != nil {
		logger.Warning("bot - updated notify", err)
	}
	return b.showProfile(ctx, user, rep)
}

func (b *Bot) stateEditStudentGroup(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdBack:
		return b.showProfile(ctx, user, rep)
	case CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	group := NormalizeGroup(ev.Text)
	if !ValidGroup(group) {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadGroup, nil)
	}

	if err := b.store.UpdateUser(ctx, user.ID, map[string]interface{}{"group_number": group}); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	user.GroupNumber = group

	if err := b.sender.Send(ctx, user.ID, rep.Texts.Updated, nil); err != nil {
		logger.Warning("bot - updated notify", err)
	}
	return b.showProfile(ctx, user, rep)
}

func (b *Bot) stateEditTutorGroups(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdBack:
		return b.showProfile(ctx, user, rep)
	case CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	groups := ParseGroups(ev.Text)
	if len(groups) == 0 {
		return b.sender.Send(ctx, user.ID, rep.Texts.BadGroup, nil)
	}

	if err := b.store.UpdateOperatorCode(ctx, user.LinkedCode, map[string]interface{}{
		"allowed_groups": pq.StringArray(groups),
	}); err != nil {
		return fmt.Errorf("update groups: %w", err)
	}

	if err := b.sender.Send(ctx, user.ID, rep.Texts.Updated, nil); err != nil {
		logger.Warning("bot - updated notify", err)
	}
	return b.showProfile(ctx, user, rep)
}

func (b *Bot) stateProfileDeleteConfirm(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdYes:
		if err := b.store.DeleteUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		b.locks.Delete(user.ID)
		return b.sender.Send(ctx, user.ID, rep.Texts.Deleted, &transport.Keyboard{})
	case CmdNo, CmdBack, CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}
	return b.sender.Send(ctx, user.ID, rep.Texts.DeleteConfirm, confirmKeyboard(rep))
}

// --- управление заявкой ---

func (b *Bot) stateTicketManageMenu(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	if user.SelectedTicketID == nil {
		return b.toMainMenu(ctx, user)
	}
	ticketID := *user.SelectedTicketID

	switch cmd.Kind {
	case CmdEditTicketText:
		if err := b.setState(ctx, user, database.StateTicketEditText, nil); err != nil {
			return err
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.NewTicketText, backKeyboard(rep))

	case CmdDeleteTicket:
		ticket, err := b.store.GetTicket(ctx, ticketID)
		if err == nil && ticket.StudentID == user.ID && ticket.Status == database.TicketOpen {
			if err := b.store.DeleteTicket(ctx, ticketID); err != nil {
				return fmt.Errorf("delete ticket: %w", err)
			}
			if err := b.sender.Send(ctx, user.ID, rep.Texts.TicketDeleted, nil); err != nil {
				logger.Warning("bot - ticket deleted notify", err)
			}
		} else if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		return b.toMainMenu(ctx, user)

	case CmdBack, CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	text := fmt.Sprintf(rep.Texts.ManageTicketFmt, ticketID)
	return b.sender.Send(ctx, user.ID, text, manageKeyboard(rep))
}

func (b *Bot) stateTicketEditText(ctx context.Context, user *database.User, ev *transport.InboundEvent, cmd Command, rep *replies.Replies) error {
	if user.SelectedTicketID == nil {
		return b.toMainMenu(ctx, user)
	}
	ticketID := *user.SelectedTicketID

	// кнопки нельзя принимать за новый текст заявки
	switch cmd.Kind {
	case CmdBack:
		if err := b.setState(ctx, user, database.StateTicketManageMenu, nil); err != nil {
			return err
		}
		text := fmt.Sprintf(rep.Texts.ManageTicketFmt, ticketID)
		return b.sender.Send(ctx, user.ID, text, manageKeyboard(rep))
	case CmdMainMenu:
		return b.toMainMenu(ctx, user)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return b.sender.Send(ctx, user.ID, rep.Texts.NewTicketText, backKeyboard(rep))
	}

	ticket, err := b.store.GetTicket(ctx, ticketID)
	if err != nil || ticket.StudentID != user.ID || ticket.Status != database.TicketOpen {
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		// заявку уже взяли или удалили, менять текст поздно
		if err := b.sender.Send(ctx, user.ID, rep.Texts.TicketNotFound, nil); err != nil {
			logger.Warning("bot - edit text notify", err)
		}
		return b.toMainMenu(ctx, user)
	}

	if err := b.store.UpdateTicket(ctx, ticketID, map[string]interface{}{"question": text}); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}

	if err := b.sender.Send(ctx, user.ID, rep.Texts.Updated, nil); err != nil {
		logger.Warning("bot - updated notify", err)
	}
	return b.toMainMenu(ctx, user)
}

// toMainMenu сбрасывает состояние и привязки к тикетам, затем
// перерисовывает меню.
func (b *Bot) toMainMenu(ctx context.Context, user *database.User) error {
	if err := b.setState(ctx, user, database.StateMainMenu, map[string]interface{}{
		"active_ticket_id":   nil,
		"selected_ticket_id": nil,
	}); err != nil {
		return err
	}
	user.ActiveTicketID = nil
	user.SelectedTicketID = nil
	return b.RenderMainMenu(ctx, user)
}
