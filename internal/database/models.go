package database

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// Состояния диалога пользователя. Состояние хранится в БД,
// поэтому переживает рестарт бота.
const (
	StateRegistrationStart = "registration_start"
	StateRegStudentFIO     = "reg_student_fio"
	StateRegStudentGroup   = "reg_student_group"
	StateRegOperatorCode   = "reg_operator_code"

	StateMainMenu        = "main_menu"
	StateAskQuestionMode = "ask_question_mode"
	StateChatMode        = "chat_mode"

	StateProfileView          = "profile_view"
	StateProfileEditSelect    = "profile_edit_select"
	StateEditStudentFIO       = "edit_student_fio"
	StateEditStudentGroup     = "edit_student_group"
	StateEditTutorFIO         = "edit_tutor_fio"
	StateEditTutorGroups      = "edit_tutor_groups"
	StateProfileDeleteConfirm = "profile_delete_confirm"

	StateTicketManageMenu = "ticket_manage_menu"
	StateTicketEditText   = "ticket_edit_text"
)

type Role string

const (
	RoleUnset    Role = ""
	RoleStudent  Role = "student"
	RoleOperator Role = "operator"
)

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketActive TicketStatus = "active"
	TicketClosed TicketStatus = "closed"
)

var (
	ErrNotFound = errors.New("database: record not found")
	// заявку уже взял другой оператор
	ErrTicketTaken = errors.New("database: ticket already taken")
)

type (
	// User - участник диалога. Создается при первом входящем
	// событии от неизвестного идентификатора.
	User struct {
		ID          int64  `gorm:"column:id;primaryKey"`
		Role        Role   `gorm:"column:role"`
		FullName    string `gorm:"column:full_name"`
		GroupNumber string `gorm:"column:group_number"`
		// код оператора, с которым связан профиль тьютора
		LinkedCode string `gorm:"column:linked_code"`
		State      string `gorm:"column:state"`
		// привязка к чату, непустая только в chat_mode
		ActiveTicketID *int64 `gorm:"column:active_ticket_id"`
		// заявка, выбранная в меню управления
		SelectedTicketID *int64    `gorm:"column:selected_ticket_id"`
		CreatedAt        time.Time `gorm:"column:created_at"`
	}

	// OperatorCode - заранее выданный код регистрации тьютора.
	OperatorCode struct {
		Code          string         `gorm:"column:code;primaryKey"`
		TutorName     string         `gorm:"column:tutor_name"`
		AllowedGroups pq.StringArray `gorm:"column:allowed_groups;type:text[]"`
	}

	Ticket struct {
		ID         int64        `gorm:"column:id;primaryKey"`
		StudentID  int64        `gorm:"column:student_id"`
		OperatorID *int64       `gorm:"column:operator_id"`
		Question   string       `gorm:"column:question"`
		Status     TicketStatus `gorm:"column:status"`
		CreatedAt  time.Time    `gorm:"column:created_at"`
	}

	// Message - одно сообщение в тикете. После записи меняется
	// только флаг is_read.
	Message struct {
		ID          int64          `gorm:"column:id;primaryKey"`
		TicketID    int64          `gorm:"column:ticket_id"`
		SenderID    int64          `gorm:"column:sender_id"`
		Text        string         `gorm:"column:text"`
		Attachments pq.StringArray `gorm:"column:attachments;type:text[]"`
		IsRead      bool           `gorm:"column:is_read"`
		CreatedAt   time.Time      `gorm:"column:created_at"`
	}

	FaqEntry struct {
		ID       int64  `gorm:"column:id;primaryKey"`
		Category string `gorm:"column:category"`
		Question string `gorm:"column:question"`
		Answer   string `gorm:"column:answer"`
		Keywords string `gorm:"column:keywords"`
	}

	// FaqHit - запись FAQ с расстоянием до вопроса пользователя
	// (только для векторного поиска).
	FaqHit struct {
		FaqEntry
		Distance float64 `gorm:"column:distance"`
	}

	// TicketWithStudent - тикет вместе с данными студента для списков.
	TicketWithStudent struct {
		Ticket
		FullName    string `gorm:"column:full_name"`
		GroupNumber string `gorm:"column:group_number"`
	}
)

func (User) TableName() string         { return "users" }
func (OperatorCode) TableName() string { return "operator_codes" }
func (Ticket) TableName() string       { return "tickets" }
func (Message) TableName() string      { return "messages" }
func (FaqEntry) TableName() string     { return "faq_entries" }

// NewUser - пользователь, впервые написавший боту.
func NewUser(id int64) *User {
	return &User{ID: id, State: StateRegistrationStart}
}

// NewTicket - новая заявка студента, всегда в статусе open без оператора.
func NewTicket(studentID int64, question string) *Ticket {
	return &Ticket{StudentID: studentID, Question: question, Status: TicketOpen}
}

// Validate проверяет инварианты тикета перед записью.
func (t *Ticket) Validate() error {
	if t.StudentID == 0 {
		return errors.New("ticket: student id is required")
	}
	if t.Question == "" {
		return errors.New("ticket: question is required")
	}
	if t.Status == TicketActive && t.OperatorID == nil {
		return errors.New("ticket: active ticket requires operator")
	}
	return nil
}
