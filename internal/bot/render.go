package bot

import (
	"context"
	"fmt"

	"tutor-support-bot/internal/database"
	"tutor-support-bot/internal/replies"
	"tutor-support-bot/internal/transport"
)

// RenderMainMenu шлет пользователю меню его роли. Вызывается явно и
// служит безопасной точкой восстановления из любого состояния.
func (b *Bot) RenderMainMenu(ctx context.Context, user *database.User) error {
	rep := replies.Get()
	if user.Role == database.RoleOperator {
		return b.sender.Send(ctx, user.ID, rep.Texts.MenuTutor, &transport.Keyboard{
			Rows: [][]transport.KeyboardKey{
				transport.Row(transport.KeyboardKey{Label: rep.Labels.Queue, Color: transport.ColorPrimary}),
				transport.Row(transport.KeyboardKey{Label: rep.Labels.Dialogs, Color: transport.ColorPrimary}),
				transport.Row(transport.KeyboardKey{Label: rep.Labels.Profile, Color: transport.ColorSecondary}),
			},
		})
	}
	return b.sender.Send(ctx, user.ID, rep.Texts.MenuStudent, &transport.Keyboard{
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.AskQuestion, Color: transport.ColorPrimary}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.MyTickets, Color: transport.ColorPrimary}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Profile, Color: transport.ColorSecondary}),
		},
	})
}

func roleKeyboard(rep *replies.Replies) *transport.Keyboard {
	return &transport.Keyboard{
		OneTime: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(
				transport.KeyboardKey{Label: rep.Labels.RoleStudent, Color: transport.ColorPrimary, Payload: &transport.Payload{Command: transport.PayloadRoleStudent}},
				transport.KeyboardKey{Label: rep.Labels.RoleTutor, Color: transport.ColorPositive, Payload: &transport.Payload{Command: transport.PayloadRoleOperator}},
			),
		},
	}
}

func backKeyboard(rep *replies.Replies) *transport.Keyboard {
	return &transport.Keyboard{
		OneTime: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Back, Color: transport.ColorSecondary}),
		},
	}
}

func homeKeyboard(rep *replies.Replies) *transport.Keyboard {
	return &transport.Keyboard{
		OneTime: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Home, Color: transport.ColorSecondary}),
		},
	}
}

// forwardKeyboard - обязательный "запасной выход": автоответы не
// считаются достаточными, вопрос всегда можно передать тьютору.
func forwardKeyboard(rep *replies.Replies, question string, candidates []database.FaqEntry) *transport.Keyboard {
	kb := &transport.Keyboard{OneTime: true}
	for i, c := range candidates {
		kb.Rows = append(kb.Rows, transport.Row(transport.KeyboardKey{
			Label:   fmt.Sprintf("%d. %s", i+1, truncate(c.Question, 30)),
			Color:   transport.ColorPrimary,
			Payload: &transport.Payload{Command: transport.PayloadShowFaqAnswer, FaqID: c.ID},
		}))
	}
	kb.Rows = append(kb.Rows,
		transport.Row(transport.KeyboardKey{
			Label:   rep.Labels.Forward,
			Color:   transport.ColorPositive,
			Payload: &transport.Payload{Command: transport.PayloadConfirmSend, Question: question},
		}),
		transport.Row(transport.KeyboardKey{Label: rep.Labels.Home, Color: transport.ColorSecondary}),
	)
	return kb
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

func profileKeyboard(rep *replies.Replies, role database.Role) *transport.Keyboard {
	if role == database.RoleOperator {
		return &transport.Keyboard{
			Rows: [][]transport.KeyboardKey{
				transport.Row(transport.KeyboardKey{Label: rep.Labels.Edit, Color: transport.ColorPrimary}),
				transport.Row(transport.KeyboardKey{Label: rep.Labels.Logout, Color: transport.ColorNegative, Payload: &transport.Payload{Command: transport.PayloadLogout}}),
				transport.Row(transport.KeyboardKey{Label: rep.Labels.MainMenu, Color: transport.ColorSecondary}),
			},
		}
	}
	return &transport.Keyboard{
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Edit, Color: transport.ColorPrimary}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.DeleteUser, Color: transport.ColorNegative}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.MainMenu, Color: transport.ColorSecondary}),
		},
	}
}

func editSelectKeyboard(rep *replies.Replies, role database.Role) *transport.Keyboard {
	group := rep.Labels.Group
	if role == database.RoleOperator {
		group = rep.Labels.Groups
	}
	return &transport.Keyboard{
		OneTime: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(
				transport.KeyboardKey{Label: rep.Labels.FIO, Color: transport.ColorPrimary},
				transport.KeyboardKey{Label: group, Color: transport.ColorPrimary},
			),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Back, Color: transport.ColorSecondary}),
		},
	}
}

func confirmKeyboard(rep *replies.Replies) *transport.Keyboard {
	return &transport.Keyboard{
		OneTime: true,
		Rows: [][]transport.KeyboardKey{
			transport.Row(
				transport.KeyboardKey{Label: rep.Labels.Yes, Color: transport.ColorNegative},
				transport.KeyboardKey{Label: rep.Labels.No, Color: transport.ColorSecondary},
			),
		},
	}
}

func manageKeyboard(rep *replies.Replies) *transport.Keyboard {
	return &transport.Keyboard{
		Rows: [][]transport.KeyboardKey{
			transport.Row(transport.KeyboardKey{Label: rep.Labels.EditText, Color: transport.ColorPrimary}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.DeleteTicket, Color: transport.ColorNegative}),
			transport.Row(transport.KeyboardKey{Label: rep.Labels.Back, Color: transport.ColorSecondary}),
		},
	}
}

func statusGlyph(status database.TicketStatus) string {
	switch status {
	case database.TicketOpen:
		return "⏳"
	case database.TicketActive:
		return "🟢"
	default:
		return "🏁"
	}
}

// truncate обрезает строку по рунам, не ломая кириллицу.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
