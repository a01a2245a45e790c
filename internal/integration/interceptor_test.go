package integration

import (
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/graph"
	"github.com/lspecian/vexfs-sub008/internal/vector"
)

func TestClassifyByPathPrefix(t *testing.T) {
	c := NewClassifier()
	if got := c.Classify(".vexgraph/nodes/1", nil); got != KindGraph {
		t.Fatalf("expected graph classification, got %v", got)
	}
	if got := c.Classify(".vexvec/v1", nil); got != KindVector {
		t.Fatalf("expected vector classification, got %v", got)
	}
	if got := c.Classify("/home/user/file.txt", []byte("hello")); got != KindPlain {
		t.Fatalf("expected plain classification, got %v", got)
	}
}

func TestClassifyBySniffer(t *testing.T) {
	c := NewClassifier()
	c.RegisterSniffer(KindVector, SniffVectorHeader)
	payload := make([]byte, 16)
	if got := c.Classify("/some/path", payload); got != KindVector {
		t.Fatalf("expected sniffer to classify as vector, got %v", got)
	}
}

func TestInterceptRoutesGraphWrite(t *testing.T) {
	g := graph.New(graph.Config{MaxEdgesPerNode: 10}, nil, nil)
	ic := New(NewClassifier(), g, nil, nil)
	res, err := ic.Intercept(".vexgraph/nodes/new", nil)
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if res.Kind != KindGraph || res.NodeID == 0 {
		t.Fatalf("expected a graph node to be created, got %+v", res)
	}
}

func TestInterceptRoutesVectorWrite(t *testing.T) {
	store := vector.NewStore()
	ic := New(NewClassifier(), nil, store, nil)
	payload := make([]byte, 16)
	res, err := ic.Intercept(".vexvec/v1", payload)
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if res.Kind != KindVector || res.VectorID == "" {
		t.Fatalf("expected a vector record to be created, got %+v", res)
	}
	if store.Len() != 1 {
		t.Fatalf("expected store to hold one record")
	}
}

func TestInterceptPlainWriteRequiresNoSubsystem(t *testing.T) {
	ic := New(NewClassifier(), nil, nil, nil)
	res, err := ic.Intercept("/home/user/readme.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if res.Kind != KindPlain {
		t.Fatalf("expected plain classification, got %v", res.Kind)
	}
}
