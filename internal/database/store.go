package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store - интерфейс хранилища для FSM, ретрансляции и поиска.
// Реализация - SQLStore, в тестах подменяется фейком.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, id int64, changes map[string]interface{}) error
	// UpdateUserIfActiveTicket меняет пользователя, только если его
	// active_ticket_id все еще указывает на ticketID.
	UpdateUserIfActiveTicket(ctx context.Context, id, ticketID int64, changes map[string]interface{}) (bool, error)
	DeleteUser(ctx context.Context, id int64) error

	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	CreateTicket(ctx context.Context, t *Ticket) error
	UpdateTicket(ctx context.Context, id int64, changes map[string]interface{}) error
	DeleteTicket(ctx context.Context, id int64) error
	// ClaimTicket атомарно переводит open -> active. Возвращает
	// ErrTicketTaken, если статус уже не open.
	ClaimTicket(ctx context.Context, ticketID, operatorID int64) error
	ListTicketsForStudent(ctx context.Context, studentID int64, limit int) ([]Ticket, error)
	ListOpenTicketsForGroups(ctx context.Context, groups []string, limit int) ([]TicketWithStudent, error)
	ListActiveTicketsForOperator(ctx context.Context, operatorID int64) ([]TicketWithStudent, error)

	InsertMessage(ctx context.Context, m *Message) error
	// MarkMessagesRead помечает прочитанными все сообщения тикета,
	// отправленные НЕ указанным пользователем.
	MarkMessagesRead(ctx context.Context, ticketID, notSenderID int64) error
	ListUnreadMessages(ctx context.Context, ticketID, notSenderID int64) ([]Message, error)
	CountUnread(ctx context.Context, ticketID, senderID int64) (int64, error)

	GetFaq(ctx context.Context, id int64) (*FaqEntry, error)
	LexicalSearchFaq(ctx context.Context, text string, limit int) ([]FaqEntry, error)
	VectorSearchFaq(ctx context.Context, embedding []float32, limit int) ([]FaqHit, error)
	InsertFaq(ctx context.Context, f *FaqEntry, embedding []float32) error

	GetOperatorCode(ctx context.Context, code string) (*OperatorCode, error)
	UpdateOperatorCode(ctx context.Context, code string, changes map[string]interface{}) error
	FindTutorForGroup(ctx context.Context, group string) (*OperatorCode, error)
	ListOperatorsForGroup(ctx context.Context, group string) ([]User, error)
}

type SQLStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *SQLStore) UpdateUser(ctx context.Context, id int64, changes map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(changes).Error
}

func (s *SQLStore) UpdateUserIfActiveTicket(ctx context.Context, id, ticketID int64, changes map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND active_ticket_id = ?", id, ticketID).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLStore) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&User{}, "id = ?", id).Error
}

func (s *SQLStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *SQLStore) UpdateTicket(ctx context.Context, id int64, changes map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&Ticket{}).Where("id = ?", id).Updates(changes).Error
}

func (s *SQLStore) DeleteTicket(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&Ticket{}, "id = ?", id).Error
}

// ClaimTicket - условное обновление, а не read-then-write: два
// оператора, одновременно нажавшие "Взять", не могут занять тикет оба.
func (s *SQLStore) ClaimTicket(ctx context.Context, ticketID, operatorID int64) error {
	res := s.db.WithContext(ctx).Model(&Ticket{}).
		Where("id = ? AND status = ?", ticketID, TicketOpen).
		Updates(map[string]interface{}{"operator_id": operatorID, "status": TicketActive})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetTicket(ctx, ticketID); err != nil {
			return err
		}
		return ErrTicketTaken
	}
	return nil
}

func (s *SQLStore) ListTicketsForStudent(ctx context.Context, studentID int64, limit int) ([]Ticket, error) {
	var items []Ticket
	err := s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *SQLStore) ListOpenTicketsForGroups(ctx context.Context, groups []string, limit int) ([]TicketWithStudent, error) {
	var items []TicketWithStudent
	err := s.db.WithContext(ctx).
		Table("tickets t").
		Select("t.*, u.full_name, u.group_number").
		Joins("JOIN users u ON t.student_id = u.id").
		Where("t.status = ? AND u.group_number = ANY(?)", TicketOpen, pq.Array(groups)).
		Order("t.created_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *SQLStore) ListActiveTicketsForOperator(ctx context.Context, operatorID int64) ([]TicketWithStudent, error) {
	var items []TicketWithStudent
	err := s.db.WithContext(ctx).
		Table("tickets t").
		Select("t.*, u.full_name, u.group_number").
		Joins("JOIN users u ON t.student_id = u.id").
		Where("t.status = ? AND t.operator_id = ?", TicketActive, operatorID).
		Order("t.created_at ASC").
		Find(&items).Error
	return items, err
}

func (s *SQLStore) InsertMessage(ctx context.Context, m *Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *SQLStore) MarkMessagesRead(ctx context.Context, ticketID, notSenderID int64) error {
	return s.db.WithContext(ctx).Model(&Message{}).
		Where("ticket_id = ? AND sender_id <> ?", ticketID, notSenderID).
		Update("is_read", true).Error
}

func (s *SQLStore) ListUnreadMessages(ctx context.Context, ticketID, notSenderID int64) ([]Message, error) {
	var items []Message
	err := s.db.WithContext(ctx).
		Where("ticket_id = ? AND sender_id <> ? AND is_read = FALSE", ticketID, notSenderID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (s *SQLStore) CountUnread(ctx context.Context, ticketID, senderID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("ticket_id = ? AND sender_id = ? AND is_read = FALSE", ticketID, senderID).
		Count(&count).Error
	return count, err
}

func (s *SQLStore) GetFaq(ctx context.Context, id int64) (*FaqEntry, error) {
	var f FaqEntry
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *SQLStore) GetOperatorCode(ctx context.Context, code string) (*OperatorCode, error) {
	var oc OperatorCode
	if err := s.db.WithContext(ctx).First(&oc, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &oc, nil
}

func (s *SQLStore) UpdateOperatorCode(ctx context.Context, code string, changes map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&OperatorCode{}).Where("code = ?", code).Updates(changes).Error
}

func (s *SQLStore) FindTutorForGroup(ctx context.Context, group string) (*OperatorCode, error) {
	var oc OperatorCode
	err := s.db.WithContext(ctx).
		Where("? = ANY(allowed_groups)", group).
		First(&oc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &oc, nil
}

func (s *SQLStore) ListOperatorsForGroup(ctx context.Context, group string) ([]User, error) {
	var items []User
	err := s.db.WithContext(ctx).
		Table("users u").
		Select("u.*").
		Joins("JOIN operator_codes oc ON u.linked_code = oc.code").
		Where("u.role = ? AND ? = ANY(oc.allowed_groups)", RoleOperator, group).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list operators for group %s: %w", group, err)
	}
	return items, nil
}
