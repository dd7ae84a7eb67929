package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessagePrefersParagraphBreak(t *testing.T) {
	intro := strings.Repeat("а", 3000)
	body := strings.Repeat("б", 1000) + "\n" + strings.Repeat("в", 1500)
	article := intro + "\n\n" + body

	parts := SplitMessage(article)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 куска, получили %d", len(parts))
	}
	if parts[0] != intro {
		t.Fatal("первый кусок должен заканчиваться на границе абзаца")
	}
	// Одиночный перенос внутри второго абзаца не использован как граница.
	if parts[1] != body {
		t.Fatal("абзац не должен рваться, пока есть разрыв абзаца в окне")
	}
}

func TestSplitMessageFallsBackToLineBreak(t *testing.T) {
	first := strings.Repeat("г", 4000)
	second := strings.Repeat("д", 1000)

	parts := SplitMessage(first + "\n" + second)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 куска, получили %d", len(parts))
	}
	if parts[0] != first || parts[1] != second {
		t.Fatal("без разрыва абзаца граница должна лечь на перенос строки")
	}
}

func TestSplitMessageHardCutKeepsRunesIntact(t *testing.T) {
	solid := strings.Repeat("ы", 9000)

	parts := SplitMessage(solid)
	if len(parts) != 3 {
		t.Fatalf("ожидали 3 куска, получили %d", len(parts))
	}
	var total strings.Builder
	for i, part := range parts {
		if length := len([]rune(part)); length > messageLimit {
			t.Fatalf("кусок %d превышает лимит: %d", i, length)
		}
		total.WriteString(part)
	}
	if total.String() != solid {
		t.Fatal("жёсткий разрез не должен терять или ломать руны")
	}
}

func TestSplitMessageShortText(t *testing.T) {
	text := "короткий анонс"
	parts := SplitMessage(text)
	if len(parts) != 1 || parts[0] != text {
		t.Fatalf("короткий текст должен уйти одним сообщением, получили %v", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой ввод не должен давать сообщений, получили %d", len(parts))
	}
}
