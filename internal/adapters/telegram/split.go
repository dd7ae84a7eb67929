package telegram

import "strings"

// messageLimit — максимальная длина одного сообщения Bot API.
const messageLimit = 4096

// SplitMessage режет длинный текст на куски в пределах лимита Bot API.
// Основной потребитель — тела сгенерированных статей, поэтому граница
// подбирается по убыванию приоритета: конец абзаца, конец строки, жёсткий
// разрез по рунам. Абзацы статьи не рвутся, пока в окне есть пустая строка.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		if len(runes)-start <= messageLimit {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := splitBoundary(runes, start, start+messageLimit)
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

// splitBoundary ищет правую границу куска в окне (start, end]: сперва разрыв
// абзаца, затем одиночный перенос строки, иначе end как есть.
func splitBoundary(runes []rune, start, end int) int {
	for i := end; i > start+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return end
}
