package main

import (
	"image"
	"testing"

	"diffuser/collection"
	"diffuser/settings"
	"diffuser/shared/meta"
)

func TestApplyOverrides(t *testing.T) {
	config := settings.Defaults()
	config.Generation.Prompt = "from config"

	f := flags{prompt: "from flags", steps: 12, seed: 99, scheduler: "Euler", model: "sdxl", compute: "cpuOnly"}
	set := map[string]bool{"prompt": true, "steps": true, "seed": true, "scheduler": true, "model": true, "compute": true}
	if err := applyOverrides(f, set, &config); err != nil {
		t.Fatalf("applyOverrides() error = %v", err)
	}

	g := config.Generation
	if g.Prompt != "from flags" || g.Steps != 12 || g.Seed != 99 || g.Scheduler != meta.SchedulerEuler {
		t.Errorf("generation = %+v", g)
	}
	if config.Models.Default != "sdxl" || config.Models.ComputeUnit != meta.ComputeCPUOnly {
		t.Errorf("models = %+v", config.Models)
	}
	if g.GuidanceScale != 11.0 {
		t.Errorf("unset flag changed GuidanceScale to %v", g.GuidanceScale)
	}
}

func TestApplyOverridesRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		flags flags
		set   string
	}{
		{"scheduler", flags{scheduler: "karras"}, "scheduler"},
		{"compute", flags{compute: "tpu"}, "compute"},
		{"seed", flags{seed: 1 << 40}, "seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := settings.Defaults()
			if err := applyOverrides(tt.flags, map[string]bool{tt.set: true}, &config); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestStopIsRememberedAfterRun(t *testing.T) {
	config := settings.Defaults()
	a := newApp(&config, flags{})
	a.collection.Add(collection.NewProducedImage(image.NewRGBA(image.Rect(0, 0, 2, 2)), collection.ProducedImage{Seed: 1}))

	if a.endedEarly(1) {
		t.Fatal("endedEarly() = true for a complete run")
	}
	if !a.endedEarly(2) {
		t.Error("endedEarly() = false with fewer images than requested")
	}

	a.stop()
	if !a.endedEarly(1) {
		t.Error("endedEarly() = false after stop")
	}
}
