package repository

import "database/sql"

// nullStringValue はsql.NullStringの値を返す。NULLの場合は空文字列を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullIfEmpty は空文字列をNULLとして書き込むための値を返す。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
