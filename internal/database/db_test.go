package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnString(t *testing.T) {
	got := connString(PostgresConfig{Host: "db", User: "bot", Password: "pw", Database: "invites"})
	assert.Equal(t, "host=db port=5432 user=bot password=pw dbname=invites sslmode=disable", got)

	got = connString(PostgresConfig{Host: "db", Port: 6543, SSLMode: "require"})
	assert.Contains(t, got, "port=6543")
	assert.Contains(t, got, "sslmode=require")
}

func TestIsBadPreparedStatement(t *testing.T) {
	assert.False(t, isBadPreparedStatement(nil))
	assert.True(t, isBadPreparedStatement(errors.New("pq: cached plan must not change result type")))
	assert.True(t, isBadPreparedStatement(errors.New("sql: statement is closed")))
	assert.False(t, isBadPreparedStatement(errors.New("pq: duplicate key value")))
}

func TestUnixRoundTrip(t *testing.T) {
	assert.Zero(t, unixOrZero(time.Time{}))
	assert.True(t, fromUnix(0).IsZero())

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, at, fromUnix(unixOrZero(at)))
}
