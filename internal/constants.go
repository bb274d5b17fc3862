package internal

const (
	COOKIE_ACCESS_TOKEN_NAME = "bloodlink-access-token"

	HEADER_REQUEST_ID = "X-Request-ID"
)
