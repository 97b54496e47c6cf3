package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/elee1766/talkback/src/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestToolLifecycle(t *testing.T) {
	var runs []Run
	runs = Apply(runs, Event{Kind: KindStart, ID: "a", Tool: "search", Server: "web", Args: `{"q":"go"}`, At: at(0)}, 0)
	runs = Apply(runs, Event{Kind: KindUpdate, ID: "a", Status: wire.ToolStatusOK, At: at(10)}, 0)
	runs = Apply(runs, Event{Kind: KindEnd, ID: "a", Status: wire.ToolStatusSuccess, At: at(250)}, 0)

	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "search", run.Tool)
	assert.Equal(t, "web", run.Server)
	assert.Equal(t, StatusSuccess, run.Status)
	require.Len(t, run.Updates, 1)
	assert.Equal(t, wire.ToolStatusOK, run.Updates[0].Status)
	require.NotNil(t, run.LatencyMs)
	assert.Equal(t, int64(250), *run.LatencyMs)
	assert.Equal(t, at(250), *run.CompletedAt)
}

func TestTerminalStatusIsMonotonic(t *testing.T) {
	runs := Apply(nil, Event{Kind: KindStart, ID: "a", Tool: "fetch", At: at(0)}, 0)
	runs = Apply(runs, Event{Kind: KindEnd, ID: "a", Status: wire.ToolStatusError, At: at(5)}, 0)
	runs = Apply(runs, Event{Kind: KindEnd, ID: "a", Status: wire.ToolStatusSuccess, At: at(9)}, 0)

	assert.Equal(t, StatusError, runs[0].Status)
	assert.Equal(t, int64(5), *runs[0].LatencyMs)

	runs = Apply(nil, Event{Kind: KindEnd, ID: "b", Status: wire.ToolStatusCached, At: at(1)}, 0)
	assert.Equal(t, StatusCached, runs[0].Status)
}

func TestUnknownIDCreatesRunAndLateStartIsIgnored(t *testing.T) {
	runs := Apply(nil, Event{Kind: KindUpdate, ID: "x", Status: wire.ToolStatusOK, At: at(3)}, 0)
	require.Len(t, runs, 1)
	assert.Equal(t, UnknownTool, runs[0].Tool)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Len(t, runs[0].Updates, 1)

	runs = Apply(runs, Event{Kind: KindStart, ID: "x", Tool: "late", At: at(4)}, 0)
	require.Len(t, runs, 1)
	assert.Equal(t, UnknownTool, runs[0].Tool)
	assert.Equal(t, at(3), runs[0].StartedAt)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	before := Apply(nil, Event{Kind: KindStart, ID: "a", Tool: "t", At: at(0)}, 0)
	before = Apply(before, Event{Kind: KindUpdate, ID: "a", Status: wire.ToolStatusOK, At: at(1)}, 0)
	snapshot := cloneRuns(before)

	after := Apply(before, Event{Kind: KindUpdate, ID: "a", Status: wire.ToolStatusCached, At: at(2)}, 0)
	after = Apply(after, Event{Kind: KindEnd, ID: "a", At: at(3)}, 0)

	assert.Equal(t, snapshot, before)
	assert.Len(t, after[0].Updates, 2)
	assert.Equal(t, StatusSuccess, after[0].Status)
}

func TestUpdatesKeepArrivalOrder(t *testing.T) {
	runs := Apply(nil, Event{Kind: KindStart, ID: "a", At: at(0)}, 0)
	statuses := []wire.ToolStatus{wire.ToolStatusOK, wire.ToolStatusError, wire.ToolStatusCached, wire.ToolStatusOK}
	for i, s := range statuses {
		runs = Apply(runs, Event{Kind: KindUpdate, ID: "a", Status: s, At: at(10 - i)}, 0)
	}
	var got []wire.ToolStatus
	for _, u := range runs[0].Updates {
		got = append(got, u.Status)
	}
	assert.Equal(t, statuses, got)
	assert.Equal(t, StatusRunning, runs[0].Status)
}

func TestBoundEvictsOldestCompleted(t *testing.T) {
	var runs []Run
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("run-%02d", i)
		runs = Apply(runs, Event{Kind: KindStart, ID: id, Tool: "t", At: at(i)}, 20)
		runs = Apply(runs, Event{Kind: KindEnd, ID: id, At: at(i + 1)}, 20)
	}

	require.Len(t, runs, 20)
	assert.Equal(t, "run-05", runs[0].ID)
	assert.Equal(t, "run-24", runs[19].ID)
}

func TestBoundNeverEvictsRunning(t *testing.T) {
	runs := Apply(nil, Event{Kind: KindStart, ID: "long", At: at(0)}, 3)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("done-%d", i)
		runs = Apply(runs, Event{Kind: KindStart, ID: id, At: at(i)}, 3)
		runs = Apply(runs, Event{Kind: KindEnd, ID: id, At: at(i + 1)}, 3)
	}

	require.Len(t, runs, 3)
	assert.Equal(t, "long", runs[0].ID)
	assert.Equal(t, []string{"long", "done-3", "done-4"}, ids(runs))

	// every run still running: the ledger may exceed the bound
	var busy []Run
	for i := 0; i < 5; i++ {
		busy = Apply(busy, Event{Kind: KindStart, ID: fmt.Sprintf("r%d", i), At: at(i)}, 3)
	}
	assert.Len(t, busy, 5)
	busy = Apply(busy, Event{Kind: KindEnd, ID: "r2", At: at(9)}, 3)
	assert.Equal(t, []string{"r0", "r1", "r3", "r4"}, ids(busy))
}

func TestDisplayIsMostRecentFirst(t *testing.T) {
	tl := New(0)
	for _, id := range []string{"a", "b", "c"} {
		tl.Apply(Event{Kind: KindStart, ID: id})
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(tl.Runs()))
	assert.Equal(t, []string{"c", "b", "a"}, ids(tl.Display()))

	tl.Reset()
	assert.Empty(t, tl.Runs())
}

func TestTimelineStampsMissingTimes(t *testing.T) {
	tl := New(5)
	tl.now = func() time.Time { return at(100) }

	run, ok := tl.Apply(Event{Kind: KindStart, ID: "a", Tool: "x"})
	require.True(t, ok)
	assert.Equal(t, at(100), run.StartedAt)

	tl.now = func() time.Time { return at(180) }
	run, ok = tl.Apply(Event{Kind: KindEnd, ID: "a"})
	require.True(t, ok)
	assert.Equal(t, int64(80), *run.LatencyMs)

	// returned runs are copies
	*run.LatencyMs = 1
	assert.Equal(t, int64(80), *tl.Runs()[0].LatencyMs)
}

func TestEndRunningFailsOpenRuns(t *testing.T) {
	tl := New(3)
	tl.now = func() time.Time { return at(0) }
	for i := 0; i < 4; i++ {
		tl.Apply(Event{Kind: KindStart, ID: fmt.Sprintf("r%d", i), Tool: "search"})
	}
	require.Len(t, tl.Runs(), 4)

	tl.now = func() time.Time { return at(50) }
	ended := tl.EndRunning()

	assert.Equal(t, []string{"r0", "r1", "r2", "r3"}, ids(ended))
	for _, run := range ended {
		assert.Equal(t, StatusError, run.Status)
		assert.Equal(t, int64(50), *run.LatencyMs)
	}

	// nothing is running, so the bound applies again
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(tl.Runs()))
	assert.Empty(t, tl.EndRunning())
}

func TestFromWire(t *testing.T) {
	ev, ok := FromWire(wire.StreamEvent{Kind: wire.EventToolEnd, Tool: &wire.ToolEvent{ID: "a", Status: wire.ToolStatusError}})
	require.True(t, ok)
	assert.Equal(t, KindEnd, ev.Kind)
	assert.Equal(t, wire.ToolStatusError, ev.Status)

	_, ok = FromWire(wire.Token("hi"))
	assert.False(t, ok)
}

func ids(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
