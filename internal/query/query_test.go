package query

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/event"
)

type fakeIndex struct {
	events []*event.Event
}

func (f *fakeIndex) ids(pred func(*event.Event) bool) []uint64 {
	var out []uint64
	for _, e := range f.events {
		if pred(e) {
			out = append(out, e.EventID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeIndex) AllUpTo(seq uint64) []uint64 {
	return f.ids(func(e *event.Event) bool { return e.GlobalSequence <= seq })
}
func (f *fakeIndex) ByType(t event.Type) []uint64 {
	return f.ids(func(e *event.Event) bool { return e.Type == t })
}
func (f *fakeIndex) ByCategory(c event.Category) []uint64 {
	return f.ids(func(e *event.Event) bool { return e.Category == c })
}
func (f *fakeIndex) ByTimeRange(from, to int64) []uint64 {
	return f.ids(func(e *event.Event) bool {
		return (from == 0 || e.Timestamp.Nanos >= from) && (to == 0 || e.Timestamp.Nanos <= to)
	})
}
func (f *fakeIndex) ByAgent(agent string) []uint64 {
	return f.ids(func(e *event.Event) bool {
		ac, ok := e.Context.(event.AgentContext)
		return ok && ac.AgentID == agent
	})
}
func (f *fakeIndex) ByTx(tx uint64) []uint64 {
	return f.ids(func(e *event.Event) bool { return e.HasTx && e.TransactionID == tx })
}
func (f *fakeIndex) ByChain(chain uint64) []uint64 {
	return f.ids(func(e *event.Event) bool { return e.CausalityChainID == chain })
}
func (f *fakeIndex) ByPathPrefix(prefix string) []uint64 {
	return f.ids(func(e *event.Event) bool {
		fc, ok := e.Context.(event.FilesystemContext)
		return ok && len(fc.Path) >= len(prefix) && fc.Path[:len(prefix)] == prefix
	})
}

type fakeRecords struct {
	byID map[uint64]*event.Event
	tail uint64
}

func (f *fakeRecords) Hydrate(ctx context.Context, ids []uint64) ([]*event.Event, error) {
	out := make([]*event.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := f.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRecords) LatestSequence() uint64 { return f.tail }

func buildTestFixture() (*fakeIndex, *fakeRecords) {
	events := []*event.Event{
		{EventID: 1, GlobalSequence: 1, Type: event.TypeFilesystemWrite, Category: event.CategoryFilesystem,
			Priority: event.PriorityNormal, Timestamp: event.Timestamp{Nanos: 100},
			Context: event.FilesystemContext{Path: "/data/a.txt"}},
		{EventID: 2, GlobalSequence: 2, Type: event.TypeGraphNodeCreate, Category: event.CategoryGraph,
			Priority: event.PriorityHigh, Timestamp: event.Timestamp{Nanos: 200},
			Context: event.GraphContext{NodeID: 1, Labels: []string{"Person"}}},
		{EventID: 3, GlobalSequence: 3, Type: event.TypeAgentQuery, Category: event.CategoryAgent,
			Priority: event.PriorityLow, Timestamp: event.Timestamp{Nanos: 300},
			Context: event.AgentContext{AgentID: "agent-7"}},
	}
	idx := &fakeIndex{events: events}
	rec := &fakeRecords{byID: make(map[uint64]*event.Event), tail: 3}
	for _, e := range events {
		rec.byID[e.EventID] = e
	}
	return idx, rec
}

func TestPlanWithNoFilterReturnsAllUpToTail(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := p.Plan(context.Background(), Filter{}, 0, 0, SortBySequence, Ascending)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("expected 3 events, got %d", result.Total)
	}
}

func TestPlanFiltersByCategoryAndAgent(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := p.Plan(context.Background(), Filter{Categories: []event.Category{event.CategoryAgent}, Agent: "agent-7"}, 0, 0, SortBySequence, Ascending)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Total != 1 || result.Events[0].EventID != 3 {
		t.Fatalf("expected single agent event, got %+v", result.Events)
	}
}

func TestPlanPathPatternGlob(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := p.Plan(context.Background(), Filter{PathPattern: "/data/*.txt"}, 0, 0, SortBySequence, Ascending)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Total != 1 || result.Events[0].EventID != 1 {
		t.Fatalf("expected path match, got %+v", result.Events)
	}
}

func TestPlanTagsAgainstGraphLabels(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := p.Plan(context.Background(), Filter{Tags: []string{"person"}}, 0, 0, SortBySequence, Ascending)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Total != 1 || result.Events[0].EventID != 2 {
		t.Fatalf("expected tag match, got %+v", result.Events)
	}
}

func TestPlanLimitAndOffset(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := p.Plan(context.Background(), Filter{}, 1, 1, SortBySequence, Ascending)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("expected total 3 despite pagination, got %d", result.Total)
	}
	if len(result.Events) != 1 || result.Events[0].EventID != 2 {
		t.Fatalf("expected page containing event 2, got %+v", result.Events)
	}
}

func TestBuilderFluentExecute(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)

	result, err := NewBuilder(p).Categories(event.CategoryGraph).Limit(10).Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected 1 graph event, got %d", result.Total)
	}
}

func TestHubPublishDeliversMatchingEvents(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)
	hub := NewHub(p, nil, time.Minute)

	sub, err := hub.Subscribe(Filter{Categories: []event.Category{event.CategoryGraph}}, 4, false, false)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	hub.Publish(rec.byID[1]) // filesystem, should not match
	hub.Publish(rec.byID[2]) // graph, should match

	select {
	case msg := <-sub.Messages:
		if msg.Event.EventID != 2 {
			t.Fatalf("expected event 2, got %d", msg.Event.EventID)
		}
		if msg.SequenceNum != 1 {
			t.Fatalf("expected first delivered sequence number 1, got %d", msg.SequenceNum)
		}
	default:
		t.Fatalf("expected a delivered message")
	}
}

func TestHubSubscribeHistoricalPrefixReplaysSnapshot(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)
	hub := NewHub(p, nil, time.Minute)

	sub, err := hub.Subscribe(Filter{}, 8, true, false)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	count := 0
	for {
		select {
		case <-sub.Messages:
			count++
		default:
			if count != 3 {
				t.Fatalf("expected 3 replayed historical events, got %d", count)
			}
			return
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	idx, rec := buildTestFixture()
	p := NewPlanner(idx, rec)
	hub := NewHub(p, nil, time.Minute)

	sub, _ := hub.Subscribe(Filter{}, 2, false, false)
	hub.Unsubscribe(sub.ID)

	if _, open := <-sub.Messages; open {
		t.Fatalf("expected channel to be closed after Unsubscribe")
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}
