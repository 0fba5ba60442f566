package database

import (
	"fmt"
	"regexp"
	"strings"
)

// IsMySQL returns true if using MySQL/MariaDB.
func IsMySQL() bool {
	return ActiveDriver() == "mysql"
}

// IsPostgreSQL returns true if using PostgreSQL.
func IsPostgreSQL() bool {
	return ActiveDriver() == "postgres"
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// ConvertPlaceholders converts SQL placeholders to the format required by the
// current database. This is the ONLY function that should be used for
// placeholder conversion in the codebase.
//
// IMPORTANT: Only ? placeholders are allowed. Using $N placeholders will panic.
// - For PostgreSQL: ? -> $1, $2, ...
// - For MySQL/SQLite: ? passed through as-is
//
// Example:
//
//	query := database.ConvertPlaceholders("SELECT * FROM chat_session WHERE id = ?")
//	rows, err := db.Query(query, id)
func ConvertPlaceholders(query string) string {
	// Reject $N placeholders - all queries must use ? for portability
	if dollarPlaceholder.MatchString(query) {
		panic(fmt.Sprintf("ConvertPlaceholders: $N placeholders are not allowed. Use ? placeholders instead.\nQuery: %s", query))
	}

	if IsPostgreSQL() && strings.Contains(query, "?") {
		result := strings.Builder{}
		paramNum := 1
		for _, c := range query {
			if c == '?' {
				result.WriteString(fmt.Sprintf("$%d", paramNum))
				paramNum++
			} else {
				result.WriteRune(c)
			}
		}
		query = result.String()
	}

	// MySQL is case-insensitive by default; map ILIKE back to LIKE
	if IsMySQL() {
		query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
		query = strings.ReplaceAll(query, " ilike ", " LIKE ")
	}

	return query
}
