package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/session"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport/memory"
)

func waitRound(t *testing.T, c *session.Coordinator, round uint64) {
	t.Helper()

	states, cancel := c.Subscribe()
	defer cancel()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case state := <-states:
			if state.Phase == entity.PhaseGameOver && state.Round == round {
				return
			}
		case <-timeout:
			t.Fatalf("round %d did not finish, last snapshot %+v", round, c.Snapshot())
		}
	}
}

func TestBot_PlaysEveryRound(t *testing.T) {
	// Given: a hosting session played by a bot and one auto joining bot peer
	network := memory.NewNetwork()
	hostTr := network.Join("host")
	peerTr := network.Join("peer")

	host := session.New(logger(), hostTr, session.WithLocalID("host"), session.WithSeed(3))
	peer := session.New(logger(), peerTr, session.WithLocalID("peer"))

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return host.Run(groupCtx) })
	group.Go(func() error { return peer.Run(groupCtx) })
	group.Go(func() error { return New(logger(), host, WithSeed(1)).Run(groupCtx) })
	group.Go(func() error { return New(logger(), peer, WithSeed(2), WithAutoJoin()).Run(groupCtx) })

	t.Cleanup(func() {
		cancel()
		require.NoError(t, group.Wait())
		require.NoError(t, hostTr.Close())
		require.NoError(t, peerTr.Close())
	})

	require.NoError(t, host.HostGame(3))
	require.Eventually(t, func() bool {
		return len(host.Snapshot().Opponents) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, host.StartGame())

	// When: the host asks for a rematch after every round
	// Then: the bots finish each one
	for round := uint64(1); round <= 5; round++ {
		waitRound(t, host, round)

		if round < 5 {
			require.NoError(t, host.StartNextGame())
		}
	}
}
