package generator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"diffuser/pipeline"
)

func TestCellLatestValueWins(t *testing.T) {
	c := NewCell(0)
	ch, cancel := c.Subscribe()
	defer cancel()

	if got := <-ch; got != 0 {
		t.Fatalf("initial value = %d, want 0", got)
	}

	c.Set(1)
	c.Set(2)
	c.Set(3)

	if got := <-ch; got != 3 {
		t.Errorf("subscriber saw %d, want only the latest value 3", got)
	}
	select {
	case v := <-ch:
		t.Errorf("subscriber saw a backlog value %d", v)
	default:
	}
	if c.Get() != 3 {
		t.Errorf("Get() = %d, want 3", c.Get())
	}
}

func TestCellCancelClosesChannel(t *testing.T) {
	c := NewCell("a")
	ch, cancel := c.Subscribe()
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	c.Set("b") // must not panic on a closed subscriber
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Uninitialized{}, "uninitialized"},
		{ModelsDiscovered{Models: []string{"a", "b"}}, "found 2 model(s): a, b"},
		{ModelLoading{Model: "a"}, "loading a"},
		{Ready{Model: "a"}, "ready (a)"},
		{Generating{}, "generating"},
		{Generating{Progress: &GenerationProgress{Index: 0, Total: 2}}, "generating image 1/2"},
		{Generating{Progress: &GenerationProgress{Index: 1, Total: 2, Step: &pipeline.StepProgress{Step: 3, StepCount: 20}}}, "generating image 2/2, step 3/20"},
		{Failed{Err: errors.New("boom")}, "error: boom"},
	}
	for _, tt := range tests {
		if got := Describe(tt.status); got != tt.want {
			t.Errorf("Describe(%T) = %q, want %q", tt.status, got, tt.want)
		}
	}

	if !strings.Contains(Failed{}.Message(), "unknown") {
		t.Error("Failed{}.Message() should not be empty")
	}
}

func TestSeedAt(t *testing.T) {
	tests := []struct {
		base  uint32
		index int
		want  uint32
	}{
		{10, 0, 10},
		{10, 3, 13},
		{math.MaxUint32, 0, math.MaxUint32},
		{math.MaxUint32, 1, 1},
		{math.MaxUint32 - 1, 2, 1},
	}
	for _, tt := range tests {
		if got := seedAt(tt.base, tt.index); got != tt.want {
			t.Errorf("seedAt(%d, %d) = %d, want %d", tt.base, tt.index, got, tt.want)
		}
	}
}

func TestRequestFromImage(t *testing.T) {
	f := newFixture(t, &fakePipeline{}, nil)
	f.load(t)
	f.g.Generate(request(1, 321), f.images)
	waitIdle(t, f.g)

	img, ok := f.images.At(0)
	if !ok {
		t.Fatal("no image produced")
	}
	req := Request{NumberOfImages: 2}.FromImage(img)
	if req.Seed != 321 || req.Prompt != img.Prompt || req.Scheduler != img.Scheduler || req.NumberOfImages != 2 {
		t.Errorf("FromImage() = %+v", req)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("request rebuilt from an image is invalid: %v", err)
	}
}
