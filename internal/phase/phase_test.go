package phase

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	for _, p := range []Phase{Disconnected, PreGame, InProgress, PostGame} {
		if err := Validate(p); err != nil {
			t.Fatalf("%s: unexpected error %v", p, err)
		}
	}
	if err := Validate(Phase(9)); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
	if err := Validate(Phase(-1)); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase for -1, got %v", err)
	}
}

func TestFromStarted(t *testing.T) {
	if FromStarted(false) != PreGame {
		t.Fatalf("started=false should be PreGame")
	}
	if FromStarted(true) != InProgress {
		t.Fatalf("started=true should be InProgress")
	}
}

func TestExpired(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	past := now.UnixMilli() - 1
	future := now.UnixMilli() + 60_000

	cases := []struct {
		name     string
		cur      Phase
		deadline int64
		want     bool
	}{
		{"in progress past", InProgress, past, true},
		{"in progress exactly now", InProgress, now.UnixMilli(), true},
		{"in progress future", InProgress, future, false},
		{"pre game past", PreGame, past, false},
		{"post game past", PostGame, past, false},
		{"disabled timer", InProgress, 0, false},
	}
	for _, tc := range cases {
		if got := Expired(tc.cur, tc.deadline, now); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestReachable(t *testing.T) {
	if !Reachable(SurfaceLogin, Disconnected, false) {
		t.Fatalf("login should be reachable when disconnected")
	}
	if Reachable(SurfaceLogin, PreGame, true) {
		t.Fatalf("login should be hidden once connected")
	}
	if Reachable(SurfaceStart, PreGame, false) {
		t.Fatalf("nothing but login before ready")
	}
	if !Reachable(SurfaceStart, PreGame, true) || Reachable(SurfaceStart, InProgress, true) {
		t.Fatalf("start only in pre game")
	}
	for _, p := range []Phase{InProgress, PostGame} {
		if !Reachable(SurfaceItemDecryptor, p, true) || !Reachable(SurfacePharcryptor, p, true) {
			t.Fatalf("decryptor surfaces should be reachable in %s", p)
		}
	}
	if Reachable(SurfaceItemDecryptor, PreGame, true) {
		t.Fatalf("decryptor hidden in pre game")
	}
	if !Reachable(SurfaceMessenger, PreGame, true) {
		t.Fatalf("messenger reachable when connected")
	}
}

func TestFormatCountdown(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	if got := FormatCountdown(0, now); got != TimerDisabled {
		t.Fatalf("got %q", got)
	}
	if got := FormatCountdown(now.UnixMilli()-5, now); got != "00d 00:00:00" {
		t.Fatalf("got %q", got)
	}
	d := 26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond
	if got := FormatCountdown(now.Add(d).UnixMilli(), now); got != "01d 02:03:04" {
		t.Fatalf("got %q", got)
	}
}
