package util

import "strings"

// friendVerificationNotice is boilerplate the chat export injects as the
// first message of most histories. It carries no signal for extraction.
const friendVerificationNotice = "我通过了你的朋友验证请求，现在我们可以开始聊天了"

// CleanMessageBody strips export boilerplate and surrounding whitespace
// from a raw message body.
func CleanMessageBody(raw string) string {
	cleaned := strings.ReplaceAll(raw, friendVerificationNotice, "")
	return strings.TrimSpace(cleaned)
}

// SanitizeText drops invalid UTF-8 sequences and NUL bytes, which the
// graph store rejects inside string properties.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
