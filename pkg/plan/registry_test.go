package plan

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryStartsEmpty(t *testing.T) {
	r := NewRegistry()
	if r.Current() == nil {
		t.Fatal("Current() is nil")
	}
	if r.Generation() != 0 {
		t.Errorf("Generation() = %d, want 0", r.Generation())
	}
	if _, ok := r.Find(CategoryAction, "x"); ok {
		t.Error("empty registry reported a match")
	}
}

func TestRegistryLoadPublishes(t *testing.T) {
	r := NewRegistry()

	g, err := r.Load(func(g *Graph) error {
		g.CreateAction("Wander")
		return nil
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Current() != g {
		t.Error("loaded graph was not published")
	}
	if !g.Sealed() || g.Generation() != 1 {
		t.Errorf("published graph sealed=%v generation=%d", g.Sealed(), g.Generation())
	}
	if _, ok := r.Find(CategoryAction, "Wander"); !ok {
		t.Error("registry lookup missed the loaded action")
	}

	if _, err := g.Add(NewActionEvent("Late")); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("Add on published graph error = %v, want ErrGraphSealed", err)
	}
	detached := g.CreateAction("Late")
	if _, ok := g.FindAction("Late"); ok || detached == nil {
		t.Error("CreateAction on a published graph must not register")
	}
}

func TestRegistryFailedLoadKeepsSnapshot(t *testing.T) {
	r := NewRegistry()
	before, _ := r.Load(func(g *Graph) error {
		g.CreateAction("Keep")
		return nil
	})

	boom := errors.New("boom")
	partial, err := r.Load(func(g *Graph) error {
		g.CreateAction("Partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Load error = %v, want boom", err)
	}
	if r.Current() != before {
		t.Error("failed load replaced the published snapshot")
	}
	if _, ok := partial.FindAction("Partial"); !ok {
		t.Error("partial graph should still be inspectable")
	}
	if r.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", r.Generation())
	}
}

func TestRegistryPublishRejectsSealed(t *testing.T) {
	r := NewRegistry()
	g := NewGraph()
	if gen, err := r.Publish(g); err != nil || gen != 1 {
		t.Fatalf("Publish = %d, %v", gen, err)
	}
	if _, err := r.Publish(g); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("republish error = %v, want ErrGraphSealed", err)
	}
}

func TestRegistryConcurrentLookupsDuringLoads(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if e, ok := r.Find(CategoryAction, "Tick"); ok {
					e.MarkDirty()
					_ = e.Dirty()
				}
				_ = r.All(CategoryAction)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		if _, err := r.Load(func(g *Graph) error {
			g.CreateAction("Tick")
			g.CreateAction("Tock")
			return nil
		}); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	wg.Wait()

	if r.Generation() != 20 {
		t.Errorf("Generation() = %d, want 20", r.Generation())
	}
}
