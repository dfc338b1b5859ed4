package playback

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPlayer_ReportsProgress(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &fakeSink{}
	player := NewPlayer(sink, WithPlayerClock(clock))

	var progress []float64
	finished := 0
	player.SetCallbacks(
		func(percent float64) { progress = append(progress, percent) },
		func() { finished++ },
	)

	if err := player.Play(clip(0.1)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !player.IsPlaying() {
		t.Error("Expected IsPlaying true after Play")
	}

	clock.Advance(50 * time.Millisecond)
	if len(progress) == 0 {
		t.Fatal("Expected progress callbacks midway through playback")
	}
	last := progress[len(progress)-1]
	if last <= 0 || last >= 100 {
		t.Errorf("Expected midway progress in (0, 100), got %f", last)
	}
	if finished != 0 {
		t.Error("Finish fired before playback ended")
	}

	clock.Advance(100 * time.Millisecond)
	if finished != 1 {
		t.Errorf("Expected finish to fire exactly once, got %d", finished)
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("Expected final progress 100, got %f", progress[len(progress)-1])
	}
	if player.IsPlaying() {
		t.Error("Expected IsPlaying false after natural end")
	}

	// Nothing more should fire.
	clock.Advance(time.Second)
	if finished != 1 {
		t.Errorf("Finish fired again after playback ended, count %d", finished)
	}
}

func TestPlayer_NewPlayReplacesCurrent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &fakeSink{}
	player := NewPlayer(sink, WithPlayerClock(clock))

	finished := 0
	player.SetCallbacks(nil, func() { finished++ })

	if err := player.Play(clip(1.0)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(100 * time.Millisecond)

	if err := player.Play(clip(0.1)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !sink.handles[0].isStopped() {
		t.Error("Expected first buffer to be stopped by second Play")
	}

	clock.Advance(200 * time.Millisecond)
	if finished != 1 {
		t.Errorf("Expected one finish for the second buffer only, got %d", finished)
	}
}

func TestPlayer_StopIsIdempotentAndSilent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := &fakeSink{}
	player := NewPlayer(sink, WithPlayerClock(clock))

	finished := 0
	player.SetCallbacks(nil, func() { finished++ })

	if err := player.Play(clip(1.0)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	player.Stop()
	player.Stop()

	if player.IsPlaying() {
		t.Error("Expected IsPlaying false after Stop")
	}
	if !sink.handles[0].isStopped() {
		t.Error("Expected handle stopped after Stop")
	}

	clock.Advance(2 * time.Second)
	if finished != 0 {
		t.Errorf("Finish fired after Stop, count %d", finished)
	}
}

func TestPlayer_StopWithoutPlay(t *testing.T) {
	player := NewPlayer(&fakeSink{}, WithPlayerClock(clockwork.NewFakeClock()))
	player.Stop()
}
