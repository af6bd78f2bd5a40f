package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	SetNatsConn(nil)
	p := NewPublisher()
	require.NoError(t, p.PublishTurn(context.Background(), TurnEvent{Index: 1, BattleID: "b"}))
	require.NoError(t, p.PublishBattleStarted(context.Background(), BattleEvent{BattleID: "b"}))
	require.NoError(t, p.PublishBattleRetired(context.Background(), BattleEvent{BattleID: "b"}))
	require.Nil(t, Conn())
}
