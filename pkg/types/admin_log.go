package types

import "time"

type AdminLog struct {
	ID        string         `db:"id"`
	AdminID   string         `db:"admin_id"`
	Action    string         `db:"action"`
	Details   map[string]any `db:"details"` // jsonb
	CreatedAt time.Time      `db:"created_at"`
}
