// Copyright 2017 Aleksandr Demakin. All rights reserved.

package queue

import (
	"strings"
	"unicode"
)

// CanonicalQueueName derives the external name of a queue from its message
// type name and registry key. The derivation is pure and deterministic:
// the type name is converted to snake_case, and a non-empty key is
// appended after an underscore. The result is safe for file names and
// dashboard identifiers.
func CanonicalQueueName(typeName, key string) string {
	name := CamelToSnake(typeName)
	if len(key) > 0 {
		name += "_" + key
	}
	return name
}

// CamelToSnake converts a CamelCase identifier to snake_case.
// Runs of capitals are treated as one word: "PIDStatus" becomes "pid_status".
func CamelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := !unicode.IsUpper(runes[i-1]) && runes[i-1] != '_'
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
