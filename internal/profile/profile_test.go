package profile

import "testing"

func TestDefaultRoundTripsThroughConfig(t *testing.T) {
	p := Default()
	cfg := p.Config()
	back := FromConfig("default", cfg)

	if back.StepSize != p.StepSize || back.FilterLength != p.FilterLength || back.BlockSize != p.BlockSize {
		t.Errorf("round trip through Config/FromConfig changed values: %+v vs %+v", p, back)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	p := Default()
	p.Name = "roundtrip"
	p.StepSize = 0.42

	if err := Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Load("roundtrip")
	if loaded.StepSize != 0.42 {
		t.Errorf("want StepSize 0.42 after reload, got %v", loaded.StepSize)
	}
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	loaded := Load("does-not-exist")
	want := Default()
	if loaded.StepSize != want.StepSize {
		t.Errorf("want default StepSize %v, got %v", want.StepSize, loaded.StepSize)
	}
}

func TestListReturnsSavedProfiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	a := Default()
	a.Name = "alpha"
	b := Default()
	b.Name = "beta"
	if err := Save(a); err != nil {
		t.Fatalf("Save alpha: %v", err)
	}
	if err := Save(b); err != nil {
		t.Fatalf("Save beta: %v", err)
	}

	names, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("want 2 profiles, got %d: %v", len(names), names)
	}
}
