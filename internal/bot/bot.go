package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/logger"
	"tutor-support-bot/internal/relay"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/retrieval"
	"tutor-support-bot/internal/transport"

	"github.com/gin-gonic/gin"
)

const handleTimeout = 30 * time.Second

// Searcher отвечает на вопрос студента по базе FAQ.
type Searcher interface {
	Ask(ctx context.Context, question string, onSemantic func()) retrieval.Result
}

// TicketRelay - жизненный цикл тикета и пересылка сообщений чата.
type TicketRelay interface {
	Forward(ctx context.Context, sender *database.User, text string, attachments []string) (relay.HopResult, error)
	Close(ctx context.Context, closer *database.User) error
	Claim(ctx context.Context, operator *database.User, ticketID int64) (*database.Ticket, error)
	Focus(ctx context.Context, user *database.User, ticketID int64) error
	Leave(ctx context.Context, userID int64) error
}

// Bot - машина состояний диалога. Все зависимости внедряются при
// создании, глобального состояния у пакета нет.
type Bot struct {
	store  database.Store
	search Searcher
	relay  TicketRelay
	sender transport.Sender

	// события одного пользователя обрабатываются строго по одному;
	// запись живет, пока жив пользователь, и удаляется при выходе
	locks sync.Map
}

func New(store database.Store, search Searcher, rel TicketRelay, sender transport.Sender) *Bot {
	return &Bot{
		store:  store,
		search: search,
		relay:  rel,
		sender: sender,
	}
}

// Receive - вебхук шлюза. Отвечаем 200 сразу, обработка уходит в
// горутину: шлюз не должен ждать наших походов в БД и к эмбеддеру.
func (b *Bot) Receive(c *gin.Context) {
	var ev transport.InboundEvent
	if err := c.BindJSON(&ev); err != nil {
		logger.Warning("Error while receive event", err)

		c.Status(http.StatusBadRequest)
		return
	}

	logger.Debug("Receive event:", ev.EventID, "from", ev.SenderID)

	if !ev.HasContent() {
		c.Status(http.StatusOK)
		return
	}

	go func(ev transport.InboundEvent) {
		mu := b.userLock(ev.SenderID)
		mu.Lock()
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		if err := b.HandleInboundEvent(ctx, &ev); err != nil {
			logger.Warning("Error while handle event", ev.EventID, err)
		}
	}(ev)

	c.Status(http.StatusOK)
}

func (b *Bot) userLock(id int64) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandleInboundEvent продвигает диалог пользователя на одно событие.
func (b *Bot) HandleInboundEvent(ctx context.Context, ev *transport.InboundEvent) error {
	rep := replies.Get()

	user, err := b.store.GetUser(ctx, ev.SenderID)
	if errors.Is(err, database.ErrNotFound) {
		user = database.NewUser(ev.SenderID)
		if err := b.store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return b.sender.Send(ctx, user.ID, rep.Texts.Welcome, roleKeyboard(&rep))
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	cmd := ResolveCommand(ev, &rep)
	if cmd.Global() {
		return b.handleGlobal(ctx, user, cmd, &rep)
	}

	return b.dispatch(ctx, user, ev, cmd, &rep)
}

// handleGlobal выполняет команды payload-кнопок. Они приходят из
// старых сообщений и обязаны работать из любого состояния.
func (b *Bot) handleGlobal(ctx context.Context, user *database.User, cmd Command, rep *replies.Replies) error {
	switch cmd.Kind {
	case CmdLogout:
		if err := b.store.DeleteUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		b.locks.Delete(user.ID)
		return b.sender.Send(ctx, user.ID, rep.Texts.LoggedOut, &transport.Keyboard{})

	case CmdShowFaqAnswer:
		faq, err := b.store.GetFaq(ctx, cmd.FaqID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return b.sender.Send(ctx, user.ID, rep.Texts.FaqNotFound, nil)
			}
			return err
		}
		text := fmt.Sprintf(rep.Texts.FaqAnswerFmt, faq.Question, faq.Answer)
		return b.sender.Send(ctx, user.ID, text, forwardKeyboard(rep, faq.Question, nil))

	case CmdTakeTicket:
		return b.takeTicket(ctx, user, cmd.TicketID, rep)

	case CmdOpenChat:
		return b.openChat(ctx, user, cmd.TicketID, rep)

	case CmdManageTicket:
		return b.manageTicket(ctx, user, cmd.TicketID, rep)

	case CmdConfirmSend:
		return b.forwardToTutor(ctx, user, cmd.Question, rep)
	}

	return nil
}

func (b *Bot) takeTicket(ctx context.Context, user *database.User, ticketID int64, rep *replies.Replies) error {
	if user.Role != database.RoleOperator {
		return b.RenderMainMenu(ctx, user)
	}

	ticket, err := b.relay.Claim(ctx, user, ticketID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return b.sender.Send(ctx, user.ID, rep.Texts.TicketNotFound, nil)
	case errors.Is(err, database.ErrTicketTaken):
		return b.sender.Send(ctx, user.ID, rep.Texts.TicketTaken, nil)
	case err != nil:
		return fmt.Errorf("claim ticket: %w", err)
	}

	text := fmt.Sprintf(rep.Texts.TicketTookFmt, ticket.ID)
	return b.sender.Send(ctx, user.ID, text, chatKeyboard(rep, user.Role))
}

func (b *Bot) openChat(ctx context.Context, user *database.User, ticketID int64, rep *replies.Replies) error {
	err := b.relay.Focus(ctx, user, ticketID)
	if errors.Is(err, database.ErrNotFound) {
		// тикет успел закрыться, пока кнопка лежала в чате
		if err := b.relay.Leave(ctx, user.ID); err != nil {
			return err
		}
		if err := b.sender.Send(ctx, user.ID, rep.Texts.TicketClosed, nil); err != nil {
			logger.Warning("bot - open chat notify", err)
		}
		return b.RenderMainMenu(ctx, user)
	}
	return err
}

func (b *Bot) manageTicket(ctx context.Context, user *database.User, ticketID int64, rep *replies.Replies) error {
	ticket, err := b.store.GetTicket(ctx, ticketID)
	if err != nil || ticket.StudentID != user.ID || ticket.Status != database.TicketOpen {
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		// управлять можно только своей, еще не взятой заявкой
		if err := b.sender.Send(ctx, user.ID, rep.Texts.TicketNotFound, nil); err != nil {
			logger.Warning("bot - manage notify", err)
		}
		return b.RenderMainMenu(ctx, user)
	}

	if err := b.setState(ctx, user, database.StateTicketManageMenu, map[string]interface{}{
		"selected_ticket_id": ticketID,
	}); err != nil {
		return err
	}
	user.SelectedTicketID = &ticketID

	text := fmt.Sprintf(rep.Texts.ManageTicketFmt, ticketID)
	return b.sender.Send(ctx, user.ID, text, manageKeyboard(rep))
}

// forwardToTutor создает заявку из неотвеченного вопроса и
// рассылает ее всем тьюторам группы студента.
func (b *Bot) forwardToTutor(ctx context.Context, user *database.User, question string, rep *replies.Replies) error {
	if question == "" || user.Role != database.RoleStudent {
		return b.RenderMainMenu(ctx, user)
	}

	tutor, err := b.store.FindTutorForGroup(ctx, user.GroupNumber)
	if errors.Is(err, database.ErrNotFound) {
		if err := b.setState(ctx, user, database.StateMainMenu, nil); err != nil {
			return err
		}
		text := fmt.Sprintf(rep.Texts.NoTutorForGroupFmt, user.GroupNumber)
		if err := b.sender.Send(ctx, user.ID, text, nil); err != nil {
			logger.Warning("bot - no tutor notify", err)
		}
		return b.RenderMainMenu(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("find tutor: %w", err)
	}

	if err := b.setState(ctx, user, database.StateMainMenu, nil); err != nil {
		return err
	}

	ticket := database.NewTicket(user.ID, question)
	if err := b.store.CreateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}

	text := fmt.Sprintf(rep.Texts.TicketSentFmt, tutor.TutorName)
	if err := b.sender.Send(ctx, user.ID, text, nil); err != nil {
		logger.Warning("bot - ticket sent notify", err)
	}
	if err := b.RenderMainMenu(ctx, user); err != nil {
		logger.Warning("bot - render menu", err)
	}

	// рассылка тьюторам best-effort: заявка уже в очереди и
	// доступна через "Очередь вопросов" даже без уведомления
	operators, err := b.store.ListOperatorsForGroup(ctx, user.GroupNumber)
	if err != nil {
		logger.Warning("bot - list operators", err)
		return nil
	}

	notice := fmt.Sprintf(rep.Texts.NewTicketFmt, ticket.ID, user.FullName, truncate(question, 100))
	kb := &transport.Keyboard{
		Inline: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{
				Label:   fmt.Sprintf(rep.Labels.TakeFmt, ticket.ID),
				Color:   transport.ColorPositive,
				Payload: &transport.Payload{Command: transport.PayloadTakeTicket, TicketID: ticket.ID},
			}),
		},
	}
	for _, op := range operators {
		if err := b.sender.Send(ctx, op.ID, notice, kb); err != nil {
			logger.Warning("bot - tutor notify", op.ID, err)
		}
	}

	return nil
}

// setState пишет новое состояние в БД до любых отправок и держит
// локальную копию пользователя согласованной.
func (b *Bot) setState(ctx context.Context, user *database.User, state string, extra map[string]interface{}) error {
	changes := map[string]interface{}{"state": state}
	for k, v := range extra {
		changes[k] = v
	}
	if err := b.store.UpdateUser(ctx, user.ID, changes); err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	user.State = state
	return nil
}
