package util

import (
	"testing"
	"time"

	"github.com/carecycle/carecycle-api/config"
	redismock "github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestAddSessionToUserSet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(config.ResetRedisClientForTest)

	mock.ExpectSAdd("user_sessions:7", "tok-1").SetVal(1)
	mock.ExpectExpire("user_sessions:7", time.Hour).SetVal(true)

	assert.NoError(t, AddSessionToUserSet(7, "tok-1", time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSessionToUserSet_NonPositiveTTLPersists(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(config.ResetRedisClientForTest)

	mock.ExpectSAdd("user_sessions:7", "tok-1").SetVal(1)
	mock.ExpectPersist("user_sessions:7").SetVal(true)

	assert.NoError(t, AddSessionToUserSet(7, "tok-1", 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateUserSessions(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(config.ResetRedisClientForTest)

	mock.ExpectSMembers("user_sessions:7").SetVal([]string{"tok-1", "tok-2"})
	mock.ExpectDel("session:tok-1").SetVal(1)
	mock.ExpectDel("session:tok-2").SetVal(1)
	mock.ExpectDel("user_sessions:7").SetVal(1)

	assert.NoError(t, InvalidateUserSessions(7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionHelpers_NoRedisIsNoop(t *testing.T) {
	config.ResetRedisClientForTest()

	assert.NoError(t, AddSessionToUserSet(7, "tok-1", time.Hour))
	assert.NoError(t, RemoveSessionTokenFromUserSet(7, "tok-1"))
	assert.NoError(t, InvalidateUserSessions(7))
}
