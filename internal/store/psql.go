package store

import (
	sq "github.com/Masterminds/squirrel"
)

const (
	userTableName         = "users"
	donorTableName        = "donors"
	bloodRequestTableName = "blood_requests"
	notificationTableName = "notifications"
	adminLogTableName     = "admin_logs"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
