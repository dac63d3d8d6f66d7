package provisioner

import (
	"strings"
)

// SplitStatements разбивает SQL-скрипт на отдельные команды по ";".
//
// Точка с запятой не считается разделителем внутри строковых литералов
// (включая E'...'), идентификаторов в двойных кавычках, тел в долларовых
// кавычках ($$...$$, $tag$...$tag$) и комментариев. Комментарии из
// результата удаляются, пустые команды пропускаются.
func SplitStatements(script string) []string {
	var (
		stmts []string
		b     strings.Builder
	)

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			stmts = append(stmts, s)
		}
		b.Reset()
	}

	n := len(script)
	for i := 0; i < n; {
		c := script[i]
		switch {
		case c == '-' && i+1 < n && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = n
			} else {
				i += end
			}
			b.WriteByte(' ')

		case c == '/' && i+1 < n && script[i+1] == '*':
			i = skipBlockComment(script, i)
			b.WriteByte(' ')

		case c == '\'':
			end := skipQuoted(script, i, '\'', isEscapeString(script, i))
			b.WriteString(script[i:end])
			i = end

		case c == '"':
			end := skipQuoted(script, i, '"', false)
			b.WriteString(script[i:end])
			i = end

		case c == '$':
			tag, ok := dollarTag(script, i)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			end := strings.Index(script[i+len(tag):], tag)
			if end < 0 {
				end = n
			} else {
				end = i + len(tag) + end + len(tag)
			}
			b.WriteString(script[i:end])
			i = end

		case c == ';':
			flush()
			i++

		default:
			b.WriteByte(c)
			i++
		}
	}
	flush()

	return stmts
}

// skipQuoted возвращает индекс сразу за закрывающей кавычкой q.
// Удвоенная кавычка внутри литерала экранирует саму себя.
func skipQuoted(s string, start int, q byte, backslash bool) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if backslash {
				i++
			}
		case q:
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

// skipBlockComment учитывает вложенные /* */, как PostgreSQL
func skipBlockComment(s string, start int) int {
	depth := 0
	for i := start; i < len(s)-1; i++ {
		switch {
		case s[i] == '/' && s[i+1] == '*':
			depth++
			i++
		case s[i] == '*' && s[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// dollarTag распознает открывающую долларовую кавычку в позиции start.
// $1 и подобные параметры кавычкой не являются.
func dollarTag(s string, start int) (string, bool) {
	if start > 0 && isIdentChar(s[start-1]) {
		return "", false
	}
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[start : i+1], true
		}
		if !isIdentChar(c) || (i == start+1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

func isEscapeString(s string, quote int) bool {
	if quote == 0 || (s[quote-1] != 'E' && s[quote-1] != 'e') {
		return false
	}
	return quote == 1 || !isIdentChar(s[quote-2])
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}
