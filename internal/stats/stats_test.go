package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNodeStatisticsPhases(t *testing.T) {
	ns := &NodeStatistics{}
	ns.Start()
	ns.RecordPartitioned()
	ns.RecordPartitioned()
	ns.StartMainOp()
	ns.StartMerge()
	time.Sleep(time.Millisecond)
	ns.EndMerge()
	ns.EndMainOp(10, 3)
	ns.StartPushData()
	ns.EndPushData(4, 1)
	ns.Finish()
	require.Equal(t, int64(2), ns.GetNumItemsPartitioned())
	require.Equal(t, int64(10), ns.GetNumItemsReceived())
	require.Equal(t, int64(3), ns.GetNumRuns())
	require.Equal(t, int64(4), ns.GetNumGroupsEmitted())
	require.Equal(t, int64(1), ns.GetNumNeutralEmitted())
	require.True(t, ns.GetMergeRuntime() > 0)
	require.True(t, ns.GetMainOpRuntime() >= ns.GetMergeRuntime())
	runtime := ns.GetRuntime()
	time.Sleep(time.Millisecond)
	require.Equal(t, runtime, ns.GetRuntime())
}

func TestChannelStatisticsConcurrentUpdates(t *testing.T) {
	cs := NewChannelStatistics()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cs.RecordSent(2, 10)
				cs.RecordReceived(1, 5)
			}
		}()
	}
	wg.Wait()
	cs.Close()
	snap := cs.Snapshot()
	require.Equal(t, int64(1600), snap.ItemsSent)
	require.Equal(t, int64(8000), snap.BytesSent)
	require.Equal(t, int64(800), snap.BlocksSent)
	require.Equal(t, int64(800), snap.ItemsReceived)
	require.Equal(t, int64(4000), snap.BytesReceived)
	require.Equal(t, snap.Runtime, cs.Snapshot().Runtime)
}
