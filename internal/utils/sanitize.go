package utils

import (
	"regexp"
	"strings"
)

var sanitizePatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`([?&]signature=)[0-9a-fA-F]+`), `${1}***`},
	{regexp.MustCompile(`(?i)(X-MBX-APIKEY["']?\s*[:=]\s*["']?)[A-Za-z0-9]+`), `${1}***`},
	{regexp.MustCompile(`(?i)api[_-]?key["']?\s*[:=]\s*["']?([a-zA-Z0-9_-]{10,})["']?`), `api_key="***"`},
	{regexp.MustCompile(`(?i)secret[_-]?key["']?\s*[:=]\s*["']?([a-zA-Z0-9_-]{10,})["']?`), `secret_key="***"`},
	// Telegram bot token 出现在请求URL中：/bot<id>:<secret>/
	{regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]{20,}`), `bot***`},
	{regexp.MustCompile(`\b([A-Za-z0-9]{40,})\b`), `***`},
}

// SanitizeString 脱敏字符串中的敏感信息（签名、API密钥、bot token）
func SanitizeString(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, p := range sanitizePatterns {
		result = p.pattern.ReplaceAllString(result, p.replacement)
	}
	return result
}

// NormalizeSymbol 规范化交易对符号
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.ReplaceAll(symbol, " ", "")
	symbol = strings.ReplaceAll(symbol, "/", "")
	symbol = strings.ReplaceAll(symbol, "-", "")
	symbol = strings.ReplaceAll(symbol, "_", "")
	return symbol
}
