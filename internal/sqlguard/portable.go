package sqlguard

// portabilityHazard reports text outside quoted literals that the MySQL
// grammar used by ScopeChecker and PostgreSQL lex differently. Quotes follow
// the SQL standard: '' and "" escape their own quote character.
func portabilityHazard(sqlText string) string {
	var quote byte
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		var next byte
		if i+1 < len(sqlText) {
			next = sqlText[i+1]
		}

		if ch == '\\' {
			return "backslashes are not allowed"
		}
		if ch < 0x20 && ch != '\t' && ch != '\n' && ch != '\r' {
			return "control characters are not allowed"
		}
		if quote != 0 {
			if ch == quote {
				if next == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '/' && next == '*':
			return "block comments are not allowed"
		case ch == '-' && next == '-':
			return "line comments are not allowed"
		case ch == '#':
			return "# is not allowed"
		case ch == '$':
			return "dollar quoting and parameters are not allowed"
		case ch == '`':
			return "backtick identifiers are not allowed"
		case ch == '{' || ch == '}':
			return "escape braces are not allowed"
		case ch == '@':
			return "@ is not allowed"
		case ch == '&' && next == '&':
			return "&& is not allowed"
		case ch == '!' && next != '=':
			return "! is not allowed"
		case ch == ':' && next == '=':
			return ":= is not allowed"
		case ch == '^':
			return "^ is not allowed"
		}
	}
	if quote != 0 {
		return "unterminated quoted text"
	}
	return ""
}
