package params

import "strings"

const validParamChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -=_.()/+*^,:?!"

var mappedParamChars = map[rune]string{
	'>':  "__gt__",
	'<':  "__lt__",
	'\'': "__sq__",
	'"':  "__dq__",
	'[':  "__ob__",
	']':  "__cb__",
	'{':  "__oc__",
	'}':  "__cc__",
	'@':  "__at__",
	'\n': "__cn__",
	'\r': "__cr__",
	'\t': "__tc__",
	'#':  "__pd__",
}

// SanitizeParam makes a value safe to place on a command line. Mapped
// characters become escape tokens, anything else outside the allowed set
// becomes X.
func SanitizeParam(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case strings.ContainsRune(validParamChars, r):
			b.WriteRune(r)
		case mappedParamChars[r] != "":
			b.WriteString(mappedParamChars[r])
		default:
			b.WriteByte('X')
		}
	}
	return b.String()
}
