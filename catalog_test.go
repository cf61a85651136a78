package toolflow

import (
	"errors"
	"testing"
	"time"
)

func TestCatalog_RegisterAndGet(t *testing.T) {
	c := NewCatalog()
	tool := okTool("greet").WithCapabilities("greeting")

	if err := c.Register(tool, "demo"); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get("greet")
	if !ok || got.Name() != "greet" {
		t.Errorf("expected to retrieve registered tool, got %v", got)
	}

	meta, ok := c.Metadata("greet")
	if !ok {
		t.Fatal("expected metadata")
	}
	if meta.Description != "test tool" {
		t.Errorf("expected captured description, got %q", meta.Description)
	}
	if len(meta.Capabilities) != 1 || meta.Capabilities[0] != "greeting" {
		t.Errorf("expected capabilities captured, got %v", meta.Capabilities)
	}
	if len(meta.Tags) != 1 || meta.Tags[0] != "demo" {
		t.Errorf("expected tags captured, got %v", meta.Tags)
	}
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := NewCatalog()

	if err := c.Register(nil); !errors.Is(err, ErrNilTool) {
		t.Errorf("expected ErrNilTool, got %v", err)
	}

	if err := c.Register(okTool("dup")); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(okTool("dup")); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestCatalog_Remove(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(okTool("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(okTool("b")); err != nil {
		t.Fatal(err)
	}

	if err := c.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected a removed")
	}
	if err := c.Remove("a"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}

	names := c.Names()
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("expected [b], got %v", names)
	}
}

func TestCatalog_NamesPreserveOrder(t *testing.T) {
	c := NewCatalog()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := c.Register(okTool(name)); err != nil {
			t.Fatal(err)
		}
	}

	names := c.Names()
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d]: expected %s, got %s", i, want[i], names[i])
		}
	}
	if c.Len() != 3 {
		t.Errorf("expected len 3, got %d", c.Len())
	}
}

func TestCatalog_RecordInvocation(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(okTool("greet")); err != nil {
		t.Fatal(err)
	}

	c.RecordInvocation("greet", 100*time.Millisecond, true)
	c.RecordInvocation("greet", 300*time.Millisecond, false)

	meta, _ := c.Metadata("greet")
	if meta.UseCount != 2 {
		t.Errorf("expected 2 uses, got %d", meta.UseCount)
	}
	// Running average: 100ms, then 100 + (300-100)/2 = 200ms.
	if meta.AvgDuration != 200*time.Millisecond {
		t.Errorf("expected avg 200ms, got %s", meta.AvgDuration)
	}
	if meta.LastUsed.IsZero() {
		t.Error("expected last used set")
	}
	if success, ok := meta.Extra["last_success"].(bool); !ok || success {
		t.Errorf("expected last_success false, got %v", meta.Extra["last_success"])
	}

	// Unknown names are ignored, not an error.
	c.RecordInvocation("ghost", time.Second, true)
}

func TestCatalog_MetadataProviderExtra(t *testing.T) {
	c := NewCatalog()
	tool := okTool("complex").WithMetadata(map[string]any{"complexity": 0.8})
	if err := c.Register(tool); err != nil {
		t.Fatal(err)
	}

	meta, _ := c.Metadata("complex")
	if meta.Extra["complexity"] != 0.8 {
		t.Errorf("expected complexity metadata, got %v", meta.Extra)
	}
}

func TestCatalog_MetadataIsCopy(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(okTool("greet").WithCapabilities("a")); err != nil {
		t.Fatal(err)
	}

	meta, _ := c.Metadata("greet")
	meta.Capabilities[0] = "mutated"

	again, _ := c.Metadata("greet")
	if again.Capabilities[0] != "a" {
		t.Error("metadata copy leaked a reference to internal state")
	}
}
