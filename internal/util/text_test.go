package util

import "testing"

func TestCleanMessageBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "hello there",
			expected: "hello there",
		},
		{
			name:     "whitespace trimmed",
			input:    "  中午一起吃饭吗  ",
			expected: "中午一起吃饭吗",
		},
		{
			name:     "verification notice removed",
			input:    "我通过了你的朋友验证请求，现在我们可以开始聊天了",
			expected: "",
		},
		{
			name:     "notice embedded in text",
			input:    "我通过了你的朋友验证请求，现在我们可以开始聊天了 你好",
			expected: "你好",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanMessageBody(tt.input); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid text untouched",
			input:    "你好 world",
			expected: "你好 world",
		},
		{
			name:     "nul bytes stripped",
			input:    "a\x00b",
			expected: "ab",
		},
		{
			name:     "invalid utf8 dropped",
			input:    "ok\xff\xfe",
			expected: "ok",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.input); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
