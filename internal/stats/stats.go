package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// NodeStatistics contains statistics about a single GroupByIndex execution on one worker.
// It is written by the worker's thread of control only, and is NOT THREAD SAFE.
type NodeStatistics struct {
	started      bool
	startTime    time.Time
	totalRuntime int64
	finished     bool

	itemsPartitioned int64
	itemsReceived    int64
	numRuns          int64
	groupsEmitted    int64
	neutralEmitted   int64

	mainOpRuntime   int64
	mergeRuntime    int64
	pushDataRuntime int64

	// temp vars
	currentMainOpStartTime   time.Time
	currentMergeStartTime    time.Time
	currentPushDataStartTime time.Time
}

// Start triggers statistics tracking, if it hasn't been started already
func (ns *NodeStatistics) Start() {
	if !ns.started {
		ns.started = true
		ns.startTime = time.Now()
	}
}

// Finish completes statistics tracking
func (ns *NodeStatistics) Finish() {
	if ns.started && !ns.finished {
		ns.totalRuntime = time.Since(ns.startTime).Nanoseconds()
		ns.finished = true
	}
}

// RecordPartitioned counts a record sent to a recipient by the local partitioner
func (ns *NodeStatistics) RecordPartitioned() {
	ns.itemsPartitioned++
}

// StartMainOp tracks the beginning of the receive/spill/merge phase
func (ns *NodeStatistics) StartMainOp() {
	ns.currentMainOpStartTime = time.Now()
}

// EndMainOp tracks the end of the receive/spill/merge phase
func (ns *NodeStatistics) EndMainOp(itemsReceived int64, numRuns int64) {
	ns.mainOpRuntime = time.Since(ns.currentMainOpStartTime).Nanoseconds()
	ns.itemsReceived = itemsReceived
	ns.numRuns = numRuns
}

// StartMerge tracks the beginning of the multiway merge
func (ns *NodeStatistics) StartMerge() {
	ns.currentMergeStartTime = time.Now()
}

// EndMerge tracks the end of the multiway merge
func (ns *NodeStatistics) EndMerge() {
	ns.mergeRuntime = time.Since(ns.currentMergeStartTime).Nanoseconds()
}

// StartPushData tracks the beginning of the grouping phase
func (ns *NodeStatistics) StartPushData() {
	ns.currentPushDataStartTime = time.Now()
}

// EndPushData tracks the end of the grouping phase
func (ns *NodeStatistics) EndPushData(groupsEmitted int64, neutralEmitted int64) {
	ns.pushDataRuntime = time.Since(ns.currentPushDataStartTime).Nanoseconds()
	ns.groupsEmitted = groupsEmitted
	ns.neutralEmitted = neutralEmitted
}

// GetRuntime returns the running time of the node
func (ns *NodeStatistics) GetRuntime() int64 {
	if ns.finished {
		return ns.totalRuntime
	}
	return time.Since(ns.startTime).Nanoseconds()
}

// GetNumItemsPartitioned returns the number of records sent by the local partitioner
func (ns *NodeStatistics) GetNumItemsPartitioned() int64 {
	return ns.itemsPartitioned
}

// GetNumItemsReceived returns the number of records received through the shuffle
func (ns *NodeStatistics) GetNumItemsReceived() int64 {
	return ns.itemsReceived
}

// GetNumRuns returns the number of sorted runs produced by the spill phase
func (ns *NodeStatistics) GetNumRuns() int64 {
	return ns.numRuns
}

// GetNumGroupsEmitted returns the number of grouping function results emitted
func (ns *NodeStatistics) GetNumGroupsEmitted() int64 {
	return ns.groupsEmitted
}

// GetNumNeutralEmitted returns the number of neutral elements emitted for missing indices
func (ns *NodeStatistics) GetNumNeutralEmitted() int64 {
	return ns.neutralEmitted
}

// GetMainOpRuntime returns the runtime of the receive/spill/merge phase
func (ns *NodeStatistics) GetMainOpRuntime() int64 {
	return ns.mainOpRuntime
}

// GetMergeRuntime returns the runtime of the multiway merge
func (ns *NodeStatistics) GetMergeRuntime() int64 {
	return ns.mergeRuntime
}

// GetPushDataRuntime returns the runtime of the grouping phase
func (ns *NodeStatistics) GetPushDataRuntime() int64 {
	return ns.pushDataRuntime
}

// ChannelStatistics counts the traffic through a Channel on one worker. Safe for concurrent use.
type ChannelStatistics struct {
	startTime      time.Time
	closeLock      sync.Mutex
	closeTime      time.Time
	itemsSent      atomic.Int64
	bytesSent      atomic.Int64
	blocksSent     atomic.Int64
	itemsReceived  atomic.Int64
	bytesReceived  atomic.Int64
	blocksReceived atomic.Int64
}

// ChannelSnapshot is a point-in-time copy of ChannelStatistics
type ChannelSnapshot struct {
	ItemsSent      int64
	BytesSent      int64
	BlocksSent     int64
	ItemsReceived  int64
	BytesReceived  int64
	BlocksReceived int64
	Runtime        time.Duration
}

// NewChannelStatistics starts tracking a Channel
func NewChannelStatistics() *ChannelStatistics {
	return &ChannelStatistics{startTime: time.Now()}
}

// RecordSent counts a Block written by this worker
func (cs *ChannelStatistics) RecordSent(numItems int, numBytes int) {
	cs.itemsSent.Add(int64(numItems))
	cs.bytesSent.Add(int64(numBytes))
	cs.blocksSent.Add(1)
}

// RecordReceived counts a Block delivered to this worker
func (cs *ChannelStatistics) RecordReceived(numItems int, numBytes int) {
	cs.itemsReceived.Add(int64(numItems))
	cs.bytesReceived.Add(int64(numBytes))
	cs.blocksReceived.Add(1)
}

// Close marks the moment at which the Channel finished
func (cs *ChannelStatistics) Close() {
	cs.closeLock.Lock()
	defer cs.closeLock.Unlock()
	if cs.closeTime.IsZero() {
		cs.closeTime = time.Now()
	}
}

// Snapshot copies the current counters
func (cs *ChannelStatistics) Snapshot() ChannelSnapshot {
	cs.closeLock.Lock()
	end := cs.closeTime
	cs.closeLock.Unlock()
	if end.IsZero() {
		end = time.Now()
	}
	return ChannelSnapshot{
		ItemsSent:      cs.itemsSent.Load(),
		BytesSent:      cs.bytesSent.Load(),
		BlocksSent:     cs.blocksSent.Load(),
		ItemsReceived:  cs.itemsReceived.Load(),
		BytesReceived:  cs.bytesReceived.Load(),
		BlocksReceived: cs.blocksReceived.Load(),
		Runtime:        end.Sub(cs.startTime),
	}
}
