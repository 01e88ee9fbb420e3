package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns free text into a lower-cased LIKE pattern that matches it literally.
// Queries using it must declare ESCAPE '\'.
func containsPattern(raw string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(raw)) + "%"
}
