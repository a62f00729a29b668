// Package naming provides the default name derivations between SQL objects,
// GraphQL names, and subscription topics.
package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// TypeNameForView derives the default entity type name from a view name.
// The conventional v_ prefix is stripped, the remainder singularized and
// converted to PascalCase.
// Example: "v_user_profiles" -> "UserProfile".
func TypeNameForView(view string) string {
	name := strings.TrimPrefix(view, "v_")
	parts := strings.Split(name, "_")
	if len(parts) > 0 {
		last := len(parts) - 1
		parts[last] = inflection.Singular(parts[last])
	}
	return ToPascalCase(strings.Join(parts, "_"))
}

// TopicForEntity derives the default subscription topic for a write against
// an entity type. Example: ("UserProfile", "created") -> "user_profile:created".
func TopicForEntity(typeName, verb string) string {
	return ToSnakeCase(typeName) + ":" + verb
}

// ToPascalCase converts snake_case to PascalCase.
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
func ToSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize reduces a name to a case and separator insensitive form, used
// to match argument names against field names. "userId", "user_id", and
// "UserID" all normalize to "userid".
func Normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
