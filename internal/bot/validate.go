package bot

import (
	"regexp"
	"strings"
)

// Форматы анкетных полей. ФИО - минимум два слова кириллицей,
// группа - буквы, дефис, шесть цифр (например РИ-140944).
var (
	reFIO   = regexp.MustCompile(`^[А-Яа-яЁё]+\s+[А-Яа-яЁё]+.*$`)
	reGroup = regexp.MustCompile(`^[А-ЯЁ]{2,}-\d{6}$`)
)

func ValidFIO(text string) bool {
	return reFIO.MatchString(strings.TrimSpace(text))
}

// NormalizeGroup приводит номер группы к каноническому виду перед
// проверкой и записью. Идемпотентна.
func NormalizeGroup(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

func ValidGroup(group string) bool {
	return reGroup.MatchString(group)
}

// ParseGroups разбирает список групп через запятую, отбрасывая
// некорректные. Используется при редактировании групп тьютора.
func ParseGroups(text string) []string {
	var groups []string
	for _, part := range strings.Split(text, ",") {
		g := NormalizeGroup(part)
		if ValidGroup(g) {
			groups = append(groups, g)
		}
	}
	return groups
}
