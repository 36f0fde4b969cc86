package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/relay"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/retrieval"
	"tutor-support-bot/internal/transport"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestMain(m *testing.M) {
	replies.Init("")
	os.Exit(m.Run())
}

// memStore - хранилище в памяти с семантикой SQLStore, достаточной
// для прогонки сценариев диалога целиком.
type memStore struct {
	users   map[int64]*database.User
	codes   map[string]*database.OperatorCode
	tickets map[int64]*database.Ticket
	faq     map[int64]*database.FaqEntry

	messages []*database.Message

	nextTicketID int64
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int64]*database.User{},
		codes:   map[string]*database.OperatorCode{},
		tickets: map[int64]*database.Ticket{},
		faq:     map[int64]*database.FaqEntry{},
	}
}

func (s *memStore) GetUser(ctx context.Context, id int64) (*database.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) CreateUser(ctx context.Context, u *database.User) error {
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memStore) UpdateUser(ctx context.Context, id int64, changes map[string]interface{}) error {
	u, ok := s.users[id]
	if !ok {
		return database.ErrNotFound
	}
	applyUserChanges(u, changes)
	return nil
}

func (s *memStore) UpdateUserIfActiveTicket(ctx context.Context, id, ticketID int64, changes map[string]interface{}) (bool, error) {
	u, ok := s.users[id]
	if !ok || u.ActiveTicketID == nil || *u.ActiveTicketID != ticketID {
		return false, nil
	}
	applyUserChanges(u, changes)
	return true, nil
}

func applyUserChanges(u *database.User, changes map[string]interface{}) {
	for k, v := range changes {
		switch k {
		case "state":
			u.State = v.(string)
		case "role":
			u.Role = v.(database.Role)
		case "full_name":
			u.FullName = v.(string)
		case "group_number":
			u.GroupNumber = v.(string)
		case "linked_code":
			u.LinkedCode = v.(string)
		case "active_ticket_id":
			if v == nil {
				u.ActiveTicketID = nil
			} else {
				id := v.(int64)
				u.ActiveTicketID = &id
			}
		case "selected_ticket_id":
			if v == nil {
				u.SelectedTicketID = nil
			} else {
				id := v.(int64)
				u.SelectedTicketID = &id
			}
		}
	}
}

func (s *memStore) DeleteUser(ctx context.Context, id int64) error {
	delete(s.users, id)
	return nil
}

func (s *memStore) GetTicket(ctx context.Context, id int64) (*database.Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) CreateTicket(ctx context.Context, t *database.Ticket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.nextTicketID++
	t.ID = s.nextTicketID
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *memStore) UpdateTicket(ctx context.Context, id int64, changes map[string]interface{}) error {
	t, ok := s.tickets[id]
	if !ok {
		return database.ErrNotFound
	}
	for k, v := range changes {
		switch k {
		case "status":
			t.Status = v.(database.TicketStatus)
		case "question":
			t.Question = v.(string)
		}
	}
	return nil
}

func (s *memStore) DeleteTicket(ctx context.Context, id int64) error {
	delete(s.tickets, id)
	return nil
}

func (s *memStore) ClaimTicket(ctx context.Context, ticketID, operatorID int64) error {
	t, ok := s.tickets[ticketID]
	if !ok {
		return database.ErrNotFound
	}
	if t.Status != database.TicketOpen {
		return database.ErrTicketTaken
	}
	t.Status = database.TicketActive
	t.OperatorID = &operatorID
	return nil
}

func (s *memStore) ListTicketsForStudent(ctx context.Context, studentID int64, limit int) ([]database.Ticket, error) {
	var out []database.Ticket
	for _, t := range s.tickets {
		if t.StudentID == studentID && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenTicketsForGroups(ctx context.Context, groups []string, limit int) ([]database.TicketWithStudent, error) {
	var out []database.TicketWithStudent
	for _, t := range s.tickets {
		if t.Status != database.TicketOpen || len(out) >= limit {
			continue
		}
		student, ok := s.users[t.StudentID]
		if !ok {
			continue
		}
		for _, g := range groups {
			if student.GroupNumber == g {
				out = append(out, database.TicketWithStudent{
					Ticket: *t, FullName: student.FullName, GroupNumber: student.GroupNumber,
				})
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) ListActiveTicketsForOperator(ctx context.Context, operatorID int64) ([]database.TicketWithStudent, error) {
	var out []database.TicketWithStudent
	for _, t := range s.tickets {
		if t.Status != database.TicketActive || t.OperatorID == nil || *t.OperatorID != operatorID {
			continue
		}
		student := s.users[t.StudentID]
		out = append(out, database.TicketWithStudent{
			Ticket: *t, FullName: student.FullName, GroupNumber: student.GroupNumber,
		})
	}
	return out, nil
}

func (s *memStore) InsertMessage(ctx context.Context, m *database.Message) error {
	m.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) MarkMessagesRead(ctx context.Context, ticketID, notSenderID int64) error {
	for _, m := range s.messages {
		if m.TicketID == ticketID && m.SenderID != notSenderID {
			m.IsRead = true
		}
	}
	return nil
}

func (s *memStore) ListUnreadMessages(ctx context.Context, ticketID, notSenderID int64) ([]database.Message, error) {
	var out []database.Message
	for _, m := range s.messages {
		if m.TicketID == ticketID && m.SenderID != notSenderID && !m.IsRead {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) CountUnread(ctx context.Context, ticketID, senderID int64) (int64, error) {
	var count int64
	for _, m := range s.messages {
		if m.TicketID == ticketID && m.SenderID == senderID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *memStore) GetFaq(ctx context.Context, id int64) (*database.FaqEntry, error) {
	f, ok := s.faq[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) LexicalSearchFaq(ctx context.Context, text string, limit int) ([]database.FaqEntry, error) {
	return nil, nil
}

func (s *memStore) VectorSearchFaq(ctx context.Context, embedding []float32, limit int) ([]database.FaqHit, error) {
	return nil, nil
}

func (s *memStore) InsertFaq(ctx context.Context, f *database.FaqEntry, embedding []float32) error {
	s.faq[f.ID] = f
	return nil
}

func (s *memStore) GetOperatorCode(ctx context.Context, code string) (*database.OperatorCode, error) {
	oc, ok := s.codes[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *oc
	return &cp, nil
}

func (s *memStore) UpdateOperatorCode(ctx context.Context, code string, changes map[string]interface{}) error {
	oc, ok := s.codes[code]
	if !ok {
		return database.ErrNotFound
	}
	for k, v := range changes {
		switch k {
		case "tutor_name":
			oc.TutorName = v.(string)
		case "allowed_groups":
			oc.AllowedGroups = v.(pq.StringArray)
		}
	}
	return nil
}

func (s *memStore) FindTutorForGroup(ctx context.Context, group string) (*database.OperatorCode, error) {
	for _, oc := range s.codes {
		for _, g := range oc.AllowedGroups {
			if g == group {
				cp := *oc
				return &cp, nil
			}
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) ListOperatorsForGroup(ctx context.Context, group string) ([]database.User, error) {
	var out []database.User
	for _, u := range s.users {
		if u.Role != database.RoleOperator {
			continue
		}
		oc, ok := s.codes[u.LinkedCode]
		if !ok {
			continue
		}
		for _, g := range oc.AllowedGroups {
			if g == group {
				out = append(out, *u)
				break
			}
		}
	}
	return out, nil
}

type sentMessage struct {
	to   int64
	text string
	kb   *transport.Keyboard
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, recipientID int64, text string, keyboard *transport.Keyboard) error {
	return f.SendWithAttachments(ctx, recipientID, text, nil, keyboard)
}

func (f *fakeSender) SendWithAttachments(ctx context.Context, recipientID int64, text string, attachments []string, keyboard *transport.Keyboard) error {
	f.sent = append(f.sent, sentMessage{to: recipientID, text: text, kb: keyboard})
	return nil
}

func (f *fakeSender) last() sentMessage {
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) texts(to int64) []string {
	var out []string
	for _, m := range f.sent {
		if m.to == to {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeSearch struct {
	res       retrieval.Result
	announce  bool
	questions []string
}

func (f *fakeSearch) Ask(ctx context.Context, question string, onSemantic func()) retrieval.Result {
	f.questions = append(f.questions, question)
	if f.announce && onSemantic != nil {
		onSemantic()
	}
	return f.res
}

func newTestBot(search Searcher) (*Bot, *memStore, *fakeSender) {
	store := newMemStore()
	sender := &fakeSender{}
	if search == nil {
		search = &fakeSearch{res: retrieval.Result{Disposition: retrieval.Unanswered}}
	}
	return New(store, search, relay.New(store, sender), sender), store, sender
}

func textEvent(sender int64, text string) *transport.InboundEvent {
	return &transport.InboundEvent{EventID: uuid.New(), SenderID: sender, Text: text}
}

func payloadEvent(sender int64, p *transport.Payload) *transport.InboundEvent {
	return &transport.InboundEvent{EventID: uuid.New(), SenderID: sender, Payload: p}
}

func handle(t *testing.T, b *Bot, ev *transport.InboundEvent) {
	t.Helper()
	if err := b.HandleInboundEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
}

// регистрирует студента через полный диалог
func registerStudent(t *testing.T, b *Bot, id int64, group string) {
	t.Helper()
	rep := replies.Get()
	handle(t, b, textEvent(id, "привет"))
	handle(t, b, textEvent(id, rep.Labels.RoleStudent))
	handle(t, b, textEvent(id, "Иванов Иван"))
	handle(t, b, textEvent(id, group))
}

func registerTutor(t *testing.T, b *Bot, id int64, code string) {
	t.Helper()
	rep := replies.Get()
	handle(t, b, textEvent(id, "привет"))
	handle(t, b, textEvent(id, rep.Labels.RoleTutor))
	handle(t, b, textEvent(id, code))
}

func seedCode(store *memStore, code, name string, groups ...string) {
	store.codes[code] = &database.OperatorCode{
		Code: code, TutorName: name, AllowedGroups: pq.StringArray(groups),
	}
}

func TestStudentRegistrationFlow(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	handle(t, b, textEvent(1, "привет"))
	if sender.last().text != rep.Texts.Welcome {
		t.Fatalf("first contact got %q", sender.last().text)
	}

	handle(t, b, textEvent(1, rep.Labels.RoleStudent))
	if sender.last().text != rep.Texts.AskFIO {
		t.Fatalf("after role choice got %q", sender.last().text)
	}

	// невалидные ответы переспрашивают, не двигая состояние
	handle(t, b, textEvent(1, "Ivanov"))
	if sender.last().text != rep.Texts.BadFIO {
		t.Fatalf("bad fio got %q", sender.last().text)
	}
	if store.users[1].State != database.StateRegStudentFIO {
		t.Fatalf("state moved on bad fio: %s", store.users[1].State)
	}

	handle(t, b, textEvent(1, "Иванов Иван"))
	handle(t, b, textEvent(1, "140944"))
	if sender.last().text != rep.Texts.BadGroup {
		t.Fatalf("bad group got %q", sender.last().text)
	}

	// группа нормализуется до проверки
	handle(t, b, textEvent(1, "ри-140944"))

	u := store.users[1]
	if u.State != database.StateMainMenu || u.Role != database.RoleStudent {
		t.Fatalf("after registration: %+v", u)
	}
	if u.GroupNumber != "РИ-140944" {
		t.Fatalf("group = %q", u.GroupNumber)
	}

	texts := sender.texts(1)
	done := texts[len(texts)-2]
	if !strings.Contains(done, "Петров Петр") {
		t.Fatalf("registration summary %q does not name the tutor", done)
	}
	if sender.last().text != rep.Texts.MenuStudent {
		t.Fatalf("menu not rendered: %q", sender.last().text)
	}
}

func TestTutorRegistrationFlow(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	handle(t, b, textEvent(2, "старт"))
	handle(t, b, textEvent(2, rep.Labels.RoleTutor))

	handle(t, b, textEvent(2, "нет-такого-кода"))
	if sender.last().text != rep.Texts.BadCode {
		t.Fatalf("bad code got %q", sender.last().text)
	}

	handle(t, b, textEvent(2, "T-1"))
	u := store.users[2]
	if u.State != database.StateMainMenu || u.Role != database.RoleOperator {
		t.Fatalf("after registration: %+v", u)
	}
	if u.FullName != "Петров Петр" || u.LinkedCode != "T-1" {
		t.Fatalf("profile not linked to code: %+v", u)
	}
	if sender.last().text != rep.Texts.MenuTutor {
		t.Fatalf("menu not rendered: %q", sender.last().text)
	}
}

func TestRegistrationBack(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	// тьютор без кода может вернуться к выбору роли
	handle(t, b, textEvent(3, "привет"))
	handle(t, b, textEvent(3, rep.Labels.RoleTutor))
	handle(t, b, textEvent(3, rep.Labels.Back))
	u := store.users[3]
	if u.State != database.StateRegistrationStart || u.Role != "" {
		t.Fatalf("after back: %+v", u)
	}
	if sender.last().text != rep.Texts.Welcome {
		t.Fatalf("got %q", sender.last().text)
	}

	// с шага группы возврат ведет к вопросу о ФИО
	handle(t, b, textEvent(3, rep.Labels.RoleStudent))
	handle(t, b, textEvent(3, "Иванов Иван"))
	handle(t, b, textEvent(3, rep.Labels.Back))
	if store.users[3].State != database.StateRegStudentFIO {
		t.Fatalf("state = %s", store.users[3].State)
	}
	if sender.last().text != rep.Texts.AskFIO {
		t.Fatalf("got %q", sender.last().text)
	}

	handle(t, b, textEvent(3, "Сидоров Сидор"))
	handle(t, b, textEvent(3, "РИ-140944"))
	u = store.users[3]
	if u.State != database.StateMainMenu || u.FullName != "Сидоров Сидор" {
		t.Fatalf("after registration: %+v", u)
	}
}

func TestAskQuestionAnswered(t *testing.T) {
	answer := database.FaqEntry{ID: 7, Question: "Как получить справку?", Answer: "В деканате."}
	search := &fakeSearch{res: retrieval.Result{
		Disposition: retrieval.Answered,
		Source:      retrieval.SourceLexical,
		Answer:      &answer,
	}}
	b, store, sender := newTestBot(search)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	handle(t, b, textEvent(1, rep.Labels.AskQuestion))
	if store.users[1].State != database.StateAskQuestionMode {
		t.Fatalf("state = %s", store.users[1].State)
	}

	handle(t, b, textEvent(1, "где взять справку"))
	if len(search.questions) != 1 || search.questions[0] != "где взять справку" {
		t.Fatalf("search got %v", search.questions)
	}

	last := sender.last()
	if !strings.Contains(last.text, "В деканате.") {
		t.Fatalf("answer not sent: %q", last.text)
	}
	// запасной выход к тьютору присутствует всегда
	if last.kb == nil || len(last.kb.Rows) == 0 {
		t.Fatal("answer sent without forward keyboard")
	}
	found := false
	for _, row := range last.kb.Rows {
		for _, key := range row {
			if key.Payload != nil && key.Payload.Command == transport.PayloadConfirmSend {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("forward button is missing")
	}
	// остаемся в режиме вопросов
	if store.users[1].State != database.StateAskQuestionMode {
		t.Fatalf("state = %s", store.users[1].State)
	}
}

func TestAskQuestionDisambiguate(t *testing.T) {
	search := &fakeSearch{
		announce: true,
		res: retrieval.Result{
			Disposition: retrieval.Disambiguate,
			Source:      retrieval.SourceSemantic,
			Candidates: []database.FaqEntry{
				{ID: 1, Question: "Вопрос один"},
				{ID: 2, Question: "Вопрос два"},
			},
		},
	}
	b, store, sender := newTestBot(search)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	handle(t, b, textEvent(1, rep.Labels.AskQuestion))
	handle(t, b, textEvent(1, "непонятный вопрос"))

	texts := sender.texts(1)
	// анонс векторной стадии пришел до результата
	if texts[len(texts)-2] != rep.Texts.Searching {
		t.Fatalf("searching notice missing, got %q", texts[len(texts)-2])
	}
	last := sender.last()
	if last.text != rep.Texts.FoundSemantic {
		t.Fatalf("title = %q", last.text)
	}

	var faqButtons int
	for _, row := range last.kb.Rows {
		for _, key := range row {
			if key.Payload != nil && key.Payload.Command == transport.PayloadShowFaqAnswer {
				faqButtons++
			}
		}
	}
	if faqButtons != 2 {
		t.Fatalf("faq buttons = %d, want 2", faqButtons)
	}
}

func TestShowFaqAnswerButton(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	registerStudent(t, b, 1, "РИ-140944")

	store.faq[7] = &database.FaqEntry{ID: 7, Question: "Вопрос", Answer: "Ответ"}

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadShowFaqAnswer, FaqID: 7}))
	if !strings.Contains(sender.last().text, "Ответ") {
		t.Fatalf("got %q", sender.last().text)
	}

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadShowFaqAnswer, FaqID: 999}))
	if sender.last().text != replies.Get().Texts.FaqNotFound {
		t.Fatalf("got %q", sender.last().text)
	}
}

func TestTicketLifecycle(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	registerTutor(t, b, 2, "T-1")

	// студент передает вопрос тьютору
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadConfirmSend, Question: "не работает зачетка"}))

	if len(store.tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(store.tickets))
	}
	ticket := store.tickets[1]
	if ticket.Status != database.TicketOpen || ticket.StudentID != 1 {
		t.Fatalf("ticket = %+v", ticket)
	}
	// тьютор получил уведомление с кнопкой "Взять"
	notices := sender.texts(2)
	if len(notices) == 0 || !strings.Contains(notices[len(notices)-1], "не работает зачетка") {
		t.Fatalf("tutor notices = %v", notices)
	}

	// тьютор берет тикет
	handle(t, b, payloadEvent(2, &transport.Payload{Command: transport.PayloadTakeTicket, TicketID: 1}))
	if store.tickets[1].Status != database.TicketActive {
		t.Fatalf("ticket status = %s", store.tickets[1].Status)
	}
	if store.users[2].State != database.StateChatMode {
		t.Fatalf("tutor state = %s", store.users[2].State)
	}

	// второй тьютор опоздал
	seedCode(store, "T-2", "Сидоров Иван", "РИ-140944")
	registerTutor(t, b, 3, "T-2")
	handle(t, b, payloadEvent(3, &transport.Payload{Command: transport.PayloadTakeTicket, TicketID: 1}))
	if sender.last().text != rep.Texts.TicketTaken {
		t.Fatalf("late take got %q", sender.last().text)
	}

	// студент подключается к чату и пишет
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadOpenChat, TicketID: 1}))
	if store.users[1].State != database.StateChatMode {
		t.Fatalf("student state = %s", store.users[1].State)
	}
	handle(t, b, textEvent(1, "подробности проблемы"))

	tutorTexts := sender.texts(2)
	if tutorTexts[len(tutorTexts)-1] != "подробности проблемы" {
		t.Fatalf("tutor did not receive the message: %v", tutorTexts[len(tutorTexts)-1])
	}

	// тьютор завершает тикет, студента выкидывает в меню
	handle(t, b, textEvent(2, rep.Labels.CloseTutor))
	if store.tickets[1].Status != database.TicketClosed {
		t.Fatalf("ticket status = %s", store.tickets[1].Status)
	}
	if store.users[1].State != database.StateMainMenu || store.users[1].ActiveTicketID != nil {
		t.Fatalf("student not evicted: %+v", store.users[1])
	}
	if store.users[2].State != database.StateMainMenu {
		t.Fatalf("tutor not back in menu: %+v", store.users[2])
	}

	// сообщение в закрытый тикет возвращает студента в меню
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadOpenChat, TicketID: 1}))
	if store.users[1].State != database.StateMainMenu {
		t.Fatalf("closed chat reopened: %+v", store.users[1])
	}
}

func TestConfirmSendWithoutTutor(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")

	registerStudent(t, b, 1, "РИ-140944")
	// тьютор потерял группу до отправки вопроса
	store.codes["T-1"].AllowedGroups = pq.StringArray{"МЕН-200201"}

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadConfirmSend, Question: "вопрос"}))

	if len(store.tickets) != 0 {
		t.Fatalf("ticket created without a tutor")
	}
	texts := sender.texts(1)
	if !strings.Contains(texts[len(texts)-2], "РИ-140944") {
		t.Fatalf("no-tutor notice missing: %v", texts[len(texts)-2])
	}
	if store.users[1].State != database.StateMainMenu {
		t.Fatalf("state = %s", store.users[1].State)
	}
}

func TestTicketManage(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadConfirmSend, Question: "старый текст"}))

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadManageTicket, TicketID: 1}))
	if store.users[1].State != database.StateTicketManageMenu {
		t.Fatalf("state = %s", store.users[1].State)
	}
	// выбор заявки не притворяется присутствием в чате
	if store.users[1].ActiveTicketID != nil || store.users[1].SelectedTicketID == nil {
		t.Fatalf("ticket bindings: %+v", store.users[1])
	}

	handle(t, b, textEvent(1, rep.Labels.EditText))
	handle(t, b, textEvent(1, "новый текст"))
	if store.tickets[1].Question != "новый текст" {
		t.Fatalf("question = %q", store.tickets[1].Question)
	}
	if store.users[1].State != database.StateMainMenu {
		t.Fatalf("state = %s", store.users[1].State)
	}

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadManageTicket, TicketID: 1}))
	handle(t, b, textEvent(1, rep.Labels.DeleteTicket))
	if len(store.tickets) != 0 {
		t.Fatalf("ticket not deleted")
	}

	// чужой или взятый тикет управлению не подлежит
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadManageTicket, TicketID: 42}))
	texts := sender.texts(1)
	if texts[len(texts)-2] != rep.Texts.TicketNotFound {
		t.Fatalf("got %q", texts[len(texts)-2])
	}
}

func TestTicketEditTextBack(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadConfirmSend, Question: "старый текст"}))
	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadManageTicket, TicketID: 1}))
	handle(t, b, textEvent(1, rep.Labels.EditText))

	// кнопка возврата не должна стать новым текстом заявки
	handle(t, b, textEvent(1, rep.Labels.Back))
	if store.tickets[1].Question != "старый текст" {
		t.Fatalf("question = %q", store.tickets[1].Question)
	}
	if store.users[1].State != database.StateTicketManageMenu {
		t.Fatalf("state = %s", store.users[1].State)
	}
	if sender.last().text != fmt.Sprintf(rep.Texts.ManageTicketFmt, 1) {
		t.Fatalf("got %q", sender.last().text)
	}

	// главное меню бросает правку, не трогая заявку
	handle(t, b, textEvent(1, rep.Labels.EditText))
	handle(t, b, textEvent(1, rep.Labels.MainMenu))
	if store.tickets[1].Question != "старый текст" {
		t.Fatalf("question = %q", store.tickets[1].Question)
	}
	if store.users[1].State != database.StateMainMenu || store.users[1].SelectedTicketID != nil {
		t.Fatalf("after main menu: %+v", store.users[1])
	}
}

func TestProfileEditAndLogout(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")

	handle(t, b, textEvent(1, rep.Labels.Profile))
	if store.users[1].State != database.StateProfileView {
		t.Fatalf("state = %s", store.users[1].State)
	}
	profile := sender.texts(1)
	if !strings.Contains(profile[len(profile)-1], "Иванов Иван") {
		t.Fatalf("profile = %q", profile[len(profile)-1])
	}

	handle(t, b, textEvent(1, rep.Labels.Edit))
	handle(t, b, textEvent(1, rep.Labels.FIO))

	// передумал: возврат оставляет ФИО прежним
	handle(t, b, textEvent(1, rep.Labels.Back))
	if store.users[1].FullName != "Иванов Иван" {
		t.Fatalf("full name = %q", store.users[1].FullName)
	}
	if store.users[1].State != database.StateProfileView {
		t.Fatalf("state = %s", store.users[1].State)
	}

	handle(t, b, textEvent(1, rep.Labels.Edit))
	handle(t, b, textEvent(1, rep.Labels.FIO))
	handle(t, b, textEvent(1, "Сидоров Иван"))
	if store.users[1].FullName != "Сидоров Иван" {
		t.Fatalf("full name = %q", store.users[1].FullName)
	}
	// после правки возвращаемся к профилю
	if store.users[1].State != database.StateProfileView {
		t.Fatalf("state = %s", store.users[1].State)
	}

	// удаление требует подтверждения
	handle(t, b, textEvent(1, rep.Labels.DeleteUser))
	handle(t, b, textEvent(1, rep.Labels.No))
	if _, ok := store.users[1]; !ok {
		t.Fatal("user deleted without confirmation")
	}

	handle(t, b, textEvent(1, rep.Labels.Profile))
	handle(t, b, textEvent(1, rep.Labels.DeleteUser))
	b.userLock(1)
	handle(t, b, textEvent(1, rep.Labels.Yes))
	if _, ok := store.users[1]; ok {
		t.Fatal("user still exists after confirmation")
	}
	if _, ok := b.locks.Load(int64(1)); ok {
		t.Fatal("lock entry survived deletion")
	}

	// следующее сообщение начинает регистрацию заново
	handle(t, b, textEvent(1, "привет"))
	if sender.last().text != rep.Texts.Welcome {
		t.Fatalf("got %q", sender.last().text)
	}
}

func TestLogoutDropsUserLock(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerStudent(t, b, 1, "РИ-140944")
	b.userLock(1)

	handle(t, b, payloadEvent(1, &transport.Payload{Command: transport.PayloadLogout}))
	if _, ok := store.users[1]; ok {
		t.Fatal("user still exists after logout")
	}
	if _, ok := b.locks.Load(int64(1)); ok {
		t.Fatal("lock entry survived logout")
	}
	if sender.last().text != rep.Texts.LoggedOut {
		t.Fatalf("got %q", sender.last().text)
	}
}

func TestTutorEditGroups(t *testing.T) {
	b, store, _ := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	rep := replies.Get()

	registerTutor(t, b, 2, "T-1")

	handle(t, b, textEvent(2, rep.Labels.Profile))
	handle(t, b, textEvent(2, rep.Labels.Edit))
	handle(t, b, textEvent(2, rep.Labels.Groups))
	handle(t, b, textEvent(2, "ри-140944, мен-200201"))

	groups := store.codes["T-1"].AllowedGroups
	if len(groups) != 2 || groups[1] != "МЕН-200201" {
		t.Fatalf("groups = %v", groups)
	}
}

func TestUnknownStateRecovers(t *testing.T) {
	b, store, sender := newTestBot(nil)
	seedCode(store, "T-1", "Петров Петр", "РИ-140944")
	registerStudent(t, b, 1, "РИ-140944")

	store.users[1].State = "удаленная_ветка"
	handle(t, b, textEvent(1, "что-нибудь"))

	if store.users[1].State != database.StateMainMenu {
		t.Fatalf("state = %s", store.users[1].State)
	}
	if sender.last().text != replies.Get().Texts.MenuStudent {
		t.Fatalf("menu not rendered: %q", sender.last().text)
	}
}
