package stats

import (
	"sync"
	"time"

	"github.com/kprusa/anthocnet"
)

// PacketStatus mirrors the source's SimDatabase packet lifecycle. Per
// the Open Question on UNKNOWN: it is never assigned by this tracker and
// exists only so Evaluate's droprate accounting has one place to note
// that an UNKNOWN packet collapses into "not received", same as Dropped.
type PacketStatus int

const (
	StatusCreated PacketStatus = iota
	StatusInTransmission
	StatusReceived
	StatusDropped
	StatusUnknown
)

// PacketTrack is one tracked packet's lifecycle record.
type PacketTrack struct {
	Seq         uint64
	Status      PacketStatus
	Src, Dst    anthocnet.Addr
	Created     time.Time
	Destroyed   time.Time
	Size        int
}

// PacketTracker assigns monotonic sequence numbers to data packets as
// the engine accepts them and tracks each through
// Created -> InTransmission -> Received|Dropped, the same shape as the
// source's SimDatabase. Safe for concurrent use since Prometheus export
// may read while the engine writes.
//
// MarkReceived exists for a caller that can observe end-to-end delivery
// of a locally-sequenced packet (the source's SimDatabase could, since
// it instruments every node from one simulation process); this engine
// only ever learns "sent toward a next hop", not "arrived at dst", since
// nothing in the wire protocol acknowledges delivery back to the
// originator. Until an acknowledgment path exists, tracked packets stop
// at StatusInTransmission and Evaluate's droprate/delay figures should
// be read as "not confirmed delivered", not "lost".
type PacketTracker struct {
	mu     sync.Mutex
	clock  anthocnet.Clock
	seq    uint64
	tracks map[uint64]*PacketTrack
}

// NewPacketTracker constructs an empty tracker.
func NewPacketTracker(clock anthocnet.Clock) *PacketTracker {
	return &PacketTracker{clock: clock, tracks: make(map[uint64]*PacketTrack)}
}

// Create registers a new packet and returns its sequence number.
func (t *PacketTracker) Create(src, dst anthocnet.Addr, size int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	seq := t.seq
	t.tracks[seq] = &PacketTrack{
		Seq:     seq,
		Status:  StatusCreated,
		Src:     src,
		Dst:     dst,
		Created: t.clock.Now(),
		Size:    size,
	}
	return seq
}

func (t *PacketTracker) setStatus(seq uint64, status PacketStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	track, ok := t.tracks[seq]
	if !ok {
		return
	}
	track.Status = status
	if status == StatusReceived || status == StatusDropped {
		track.Destroyed = t.clock.Now()
	}
}

func (t *PacketTracker) MarkInTransmission(seq uint64) { t.setStatus(seq, StatusInTransmission) }
func (t *PacketTracker) MarkReceived(seq uint64)        { t.setStatus(seq, StatusReceived) }
func (t *PacketTracker) MarkDropped(seq uint64)         { t.setStatus(seq, StatusDropped) }

// Bucket is one granularity-sized window of Evaluate's output.
type Bucket struct {
	Start     time.Time
	DropRate  float64
	MeanDelay time.Duration
}

// Results is Evaluate's aggregate output: per-bucket droprate and mean
// end-to-end delay, plus overall means across the whole tracked run.
type Results struct {
	Buckets            []Bucket
	OverallDropRate     float64
	OverallMeanDelay    time.Duration
}

// Evaluate buckets every tracked packet by its creation time at the given
// granularity and reports droprate and mean end-to-end delay per bucket plus overall
// means, mirroring SimDatabase::Evaluate. Packets still in flight
// (Created/InTransmission) and StatusUnknown both count as not received
// for droprate purposes.
func (t *PacketTracker) Evaluate(granularity time.Duration) Results {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tracks) == 0 || granularity <= 0 {
		return Results{}
	}

	type bucketAcc struct {
		total, dropped int
		delaySum       time.Duration
		delayCount     int
	}
	buckets := make(map[int64]*bucketAcc)
	var minStart time.Time
	first := true

	for _, track := range t.tracks {
		if first || track.Created.Before(minStart) {
			minStart = track.Created
			first = false
		}
	}

	totalAll, droppedAll := 0, 0
	var delaySumAll time.Duration
	delayCountAll := 0

	for _, track := range t.tracks {
		idx := int64(track.Created.Sub(minStart) / granularity)
		b, ok := buckets[idx]
		if !ok {
			b = &bucketAcc{}
			buckets[idx] = b
		}
		b.total++
		totalAll++
		notReceived := track.Status != StatusReceived
		if notReceived {
			b.dropped++
			droppedAll++
		}
		if track.Status == StatusReceived && !track.Destroyed.IsZero() {
			delay := track.Destroyed.Sub(track.Created)
			b.delaySum += delay
			b.delayCount++
			delaySumAll += delay
			delayCountAll++
		}
	}

	maxIdx := int64(0)
	for idx := range buckets {
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	results := Results{}
	for i := int64(0); i <= maxIdx; i++ {
		b, ok := buckets[i]
		if !ok {
			continue
		}
		bucket := Bucket{Start: minStart.Add(time.Duration(i) * granularity)}
		if b.total > 0 {
			bucket.DropRate = float64(b.dropped) / float64(b.total)
		}
		if b.delayCount > 0 {
			bucket.MeanDelay = b.delaySum / time.Duration(b.delayCount)
		}
		results.Buckets = append(results.Buckets, bucket)
	}
	if totalAll > 0 {
		results.OverallDropRate = float64(droppedAll) / float64(totalAll)
	}
	if delayCountAll > 0 {
		results.OverallMeanDelay = delaySumAll / time.Duration(delayCountAll)
	}
	return results
}
