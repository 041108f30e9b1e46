package helpers

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// EscapePre escapes the characters that are special inside a MarkdownV2
// pre/code block.
func EscapePre(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	return strings.ReplaceAll(text, "`", "\\`")
}

var currencyFlags = map[string]string{
	"USD": "🇺🇸",
	"EUR": "🇪🇺",
	"GBP": "🇬🇧",
	"JPY": "🇯🇵",
	"AUD": "🇦🇺",
	"CAD": "🇨🇦",
	"CHF": "🇨🇭",
	"CNY": "🇨🇳",
	"NZD": "🇳🇿",
}

// CurrencyFlag returns the flag emoji for a currency code.
func CurrencyFlag(code string) string {
	if flag, ok := currencyFlags[strings.ToUpper(code)]; ok {
		return flag
	}
	return "🏳️"
}

func FormatCountUS(count int) string {
	p := message.NewPrinter(language.English)
	return EscapeMarkdownV2(p.Sprintf("%d", count))
}

// ChunkLines splits text into chunks below limit bytes, breaking on newlines
// so a single line is never split across two messages.
func ChunkLines(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if b.Len() > 0 && b.Len()+len(line)+1 > limit {
			chunks = append(chunks, strings.TrimRight(b.String(), "\n"))
			b.Reset()
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		chunks = append(chunks, strings.TrimRight(b.String(), "\n"))
	}
	return chunks
}
