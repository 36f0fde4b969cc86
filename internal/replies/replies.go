package replies

import (
	"os"
	"sync"

	"tutor-support-bot/internal/logger"

	"github.com/goccy/go-yaml"
)

var lock = &sync.RWMutex{}
var current *Replies

type (
	// Replies - все тексты и подписи кнопок бота. Файл replies.yml
	// перекрывает значения по умолчанию и перечитывается на лету.
	Replies struct {
		Texts  Texts  `yaml:"texts"`
		Labels Labels `yaml:"labels"`
	}

	Texts struct {
		Welcome       string `yaml:"welcome"`
		AskFIO        string `yaml:"ask_fio"`
		BadFIO        string `yaml:"bad_fio"`
		AskGroup      string `yaml:"ask_group"`
		BadGroup      string `yaml:"bad_group"`
		AskCode       string `yaml:"ask_code"`
		BadCode       string `yaml:"bad_code"`
		RegDoneTutor  string `yaml:"reg_done_tutor"`
		RegDoneFmt    string `yaml:"reg_done_fmt"` // тьютор студента
		TutorNone     string `yaml:"tutor_none"`
		MenuStudent   string `yaml:"menu_student"`
		MenuTutor     string `yaml:"menu_tutor"`
		AskQuestion   string `yaml:"ask_question"`
		Searching     string `yaml:"searching"`
		FoundLexical  string `yaml:"found_lexical"`
		FoundSemantic string `yaml:"found_semantic"`
		NotFound      string `yaml:"not_found"`
		FaqAnswerFmt  string `yaml:"faq_answer_fmt"` // вопрос + ответ
		FaqNotFound   string `yaml:"faq_not_found"`

		NoTutorForGroupFmt string `yaml:"no_tutor_for_group_fmt"`
		TicketSentFmt      string `yaml:"ticket_sent_fmt"`
		NewTicketFmt       string `yaml:"new_ticket_fmt"`

		TicketNotFound  string `yaml:"ticket_not_found"`
		TicketTaken     string `yaml:"ticket_taken"`
		TicketTookFmt   string `yaml:"ticket_took_fmt"`
		TutorJoinedFmt  string `yaml:"tutor_joined_fmt"`
		ChatActiveFmt   string `yaml:"chat_active_fmt"`
		NewMessages     string `yaml:"new_messages"`
		TicketClosedFmt string `yaml:"ticket_closed_fmt"`
		TicketClosed    string `yaml:"ticket_closed"`
		NotifyFmt       string `yaml:"notify_fmt"`
		FromStudentFmt  string `yaml:"from_student_fmt"`
		FromTutor       string `yaml:"from_tutor"`

		QueueEmpty   string `yaml:"queue_empty"`
		QueueTitle   string `yaml:"queue_title"`
		DialogsEmpty string `yaml:"dialogs_empty"`
		DialogsTitle string `yaml:"dialogs_title"`
		NoTickets    string `yaml:"no_tickets"`
		TicketsTitle string `yaml:"tickets_title"`

		ProfileStudentFmt string `yaml:"profile_student_fmt"`
		ProfileTutorFmt   string `yaml:"profile_tutor_fmt"`
		WhatToEdit        string `yaml:"what_to_edit"`
		NewFIO            string `yaml:"new_fio"`
		NewGroup          string `yaml:"new_group"`
		Updated           string `yaml:"updated"`
		DeleteConfirm     string `yaml:"delete_confirm"`
		Deleted           string `yaml:"deleted"`
		LoggedOut         string `yaml:"logged_out"`

		ManageTicketFmt string `yaml:"manage_ticket_fmt"`
		NewTicketText   string `yaml:"new_ticket_text"`
		TicketDeleted   string `yaml:"ticket_deleted"`

		Attachment string `yaml:"attachment"`
	}

	Labels struct {
		RoleStudent  string `yaml:"role_student"`
		RoleTutor    string `yaml:"role_tutor"`
		AskQuestion  string `yaml:"ask_question"`
		MyTickets    string `yaml:"my_tickets"`
		Profile      string `yaml:"profile"`
		Queue        string `yaml:"queue"`
		Dialogs      string `yaml:"dialogs"`
		Back         string `yaml:"back"`
		Home         string `yaml:"home"`
		MainMenu     string `yaml:"main_menu"`
		BackToList   string `yaml:"back_to_list"`
		LeaveChat    string `yaml:"leave_chat"`
		CloseTutor   string `yaml:"close_tutor"`
		CloseStudent string `yaml:"close_student"`
		Forward      string `yaml:"forward"`
		Edit         string `yaml:"edit"`
		DeleteUser   string `yaml:"delete_user"`
		Logout       string `yaml:"logout"`
		Yes          string `yaml:"yes"`
		No           string `yaml:"no"`
		FIO          string `yaml:"fio"`
		Group        string `yaml:"group"`
		Groups       string `yaml:"groups"`
		EditText     string `yaml:"edit_text"`
		DeleteTicket string `yaml:"delete_ticket"`
		TakeFmt      string `yaml:"take_fmt"`
		GoToFmt      string `yaml:"go_to_fmt"`
		ConnectFmt   string `yaml:"connect_fmt"`
		ManageFmt    string `yaml:"manage_fmt"`
	}
)

func defaults() *Replies {
	return &Replies{
		Texts: Texts{
			Welcome:       "Добро пожаловать! Кто вы?",
			AskFIO:        "Введите ФИО:",
			BadFIO:        "Неверный формат ФИО. Введите минимум два слова кириллицей.",
			AskGroup:      "Группа:",
			BadGroup:      "Неверный формат группы. Пример: РИ-140944",
			AskCode:       "Введите код:",
			BadCode:       "Неверный код",
			RegDoneTutor:  "Успех!",
			RegDoneFmt:    "Готово. Тьютор: %s",
			TutorNone:     "Нет",
			MenuStudent:   "Меню студента:",
			MenuTutor:     "Меню тьютора:",
			AskQuestion:   "Напишите вопрос:",
			Searching:     "🔍 Ищу по смыслу...",
			FoundLexical:  "🔎 Нашел по словам:",
			FoundSemantic: "💡 Возможно, вы имели в виду:",
			NotFound:      "Не нашел. Передать тьютору?",
			FaqAnswerFmt:  "📚 %s\n\n%s",
			FaqNotFound:   "Ошибка: ответ не найден.",

			NoTutorForGroupFmt: "⚠️ Нет тьютора для группы %s.",
			TicketSentFmt:      "✅ Отправлено (Тьютор: %s)",
			NewTicketFmt:       "🆘 Новый вопрос #%d от %s:\n\"%s\"",

			TicketNotFound:  "Тикет не найден.",
			TicketTaken:     "Тикет уже занят.",
			TicketTookFmt:   "Вы взяли тикет #%d.",
			TutorJoinedFmt:  "👨‍💻 Тьютор подключился к вопросу #%d.",
			ChatActiveFmt:   "🟢 Чат #%d активен.",
			NewMessages:     "📥 Новые сообщения:",
			TicketClosedFmt: "🏁 Тикет #%d завершен.",
			TicketClosed:    "Тикет закрыт.",
			NotifyFmt:       "🔔 Новое от %s (#%d)",
			FromStudentFmt:  "👤 %s",
			FromTutor:       "👨‍💻 Тьютор",

			QueueEmpty:   "Очередь пуста 🎉",
			QueueTitle:   "📥 Очередь:",
			DialogsEmpty: "Нет активных диалогов.",
			DialogsTitle: "💬 Диалоги:",
			NoTickets:    "Нет обращений.",
			TicketsTitle: "🗂 Ваши обращения:",

			ProfileStudentFmt: "👤 Студент: %s\nГруппа: %s\nТьютор: %s",
			ProfileTutorFmt:   "👤 Тьютор: %s\nГруппы: %s",
			WhatToEdit:        "Что изменить?",
			NewFIO:            "Новое ФИО:",
			NewGroup:          "Новая группа:",
			Updated:           "Обновлено.",
			DeleteConfirm:     "Удалить?",
			Deleted:           "Удален.",
			LoggedOut:         "Вы вышли.",

			ManageTicketFmt: "📝 Управление #%d",
			NewTicketText:   "Новый текст:",
			TicketDeleted:   "Удалено.",

			Attachment: "[Вложение]",
		},
		Labels: Labels{
			RoleStudent:  "Я Студент",
			RoleTutor:    "Я Тьютор",
			AskQuestion:  "✉️ Задать вопрос",
			MyTickets:    "🗂 Мои обращения",
			Profile:      "👤 Профиль",
			Queue:        "📥 Очередь вопросов",
			Dialogs:      "💬 Мои диалоги",
			Back:         "🔙 Назад",
			Home:         "🏠 В меню",
			MainMenu:     "🏠 Главное меню",
			BackToList:   "⬅️ Назад к списку",
			LeaveChat:    "⬅️ В меню",
			CloseTutor:   "🏁 Завершить этот тикет",
			CloseStudent: "🏁 Завершить вопрос",
			Forward:      "✉️ Передать вопрос тьютору",
			Edit:         "✏️ Редактировать",
			DeleteUser:   "❌ Удалить профиль",
			Logout:       "🚪 Выйти из аккаунта",
			Yes:          "Да",
			No:           "Нет",
			FIO:          "ФИО",
			Group:        "Группу",
			Groups:       "Группы",
			EditText:     "✏️ Изменить текст",
			DeleteTicket: "❌ Удалить заявку",
			TakeFmt:      "Взять #%d",
			GoToFmt:      "Перейти к #%d",
			ConnectFmt:   "Подключиться к #%d",
			ManageFmt:    "✏️ Упр. #%d",
		},
	}
}

// Init загружает тексты при старте. Отсутствующий файл не ошибка -
// работаем на значениях по умолчанию.
func Init(path string) *Replies {
	lock.Lock()
	defer lock.Unlock()

	if current != nil {
		logger.Warning("Replies already loaded")
		return current
	}

	r, err := load(path)
	if err != nil {
		logger.Crit("Не корректный файл текстов бота!", err)
	}
	current = r
	return current
}

// Update перечитывает файл (вызывается из watcher-а fsnotify).
func Update(path string) error {
	r, err := load(path)
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()
	*current = *r
	return nil
}

// Get возвращает снимок текущих текстов.
func Get() Replies {
	lock.RLock()
	defer lock.RUnlock()
	return *current
}

func load(path string) (*Replies, error) {
	r := defaults()

	if path == "" {
		return r, nil
	}

	input, err := os.ReadFile(path)
	if err != nil {
		logger.Info("Файл текстов не найден, используются значения по умолчанию:", path)
		return r, nil
	}

	// значения из файла перекрывают только заданные в нем ключи
	if err := yaml.Unmarshal(input, r); err != nil {
		return nil, err
	}
	return r, nil
}
