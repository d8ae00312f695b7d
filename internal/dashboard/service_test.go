package dashboard

import (
	"errors"
	"reflect"
	"testing"

	"streamplex/internal/streaming"
)

func TestService_CreatePlayer(t *testing.T) {
	svc, _ := newTestService(t, true)
	p := svc.CreatePlayer(svc.DefaultConfig())

	got, err := svc.Player(p.ID)
	if err != nil || got != p {
		t.Fatalf("Player: got %p, %v", got, err)
	}
	if svc.ActivePlayerCount() != 1 {
		t.Errorf("ActivePlayerCount: got %d", svc.ActivePlayerCount())
	}
	snap := p.Controller.Snapshot()
	if snap.State != streaming.StateIdle || snap.CurrentQuality != streaming.AutoQuality {
		t.Errorf("new player snapshot: %+v", snap)
	}
}

func TestService_DefaultConfig_is_a_copy(t *testing.T) {
	svc, _ := newTestService(t, true)
	cfg := svc.DefaultConfig()
	cfg.QualityLevels[0] = "changed"
	if svc.DefaultConfig().QualityLevels[0] != streaming.AutoQuality {
		t.Error("DefaultConfig should not share its quality list")
	}
}

func TestService_StartSession(t *testing.T) {
	t.Run("unknown_player", func(t *testing.T) {
		svc, _ := newTestService(t, true)
		if err := svc.StartSession("missing", "http://h/master.m3u8"); !errors.Is(err, ErrPlayerNotFound) {
			t.Errorf("expected ErrPlayerNotFound, got %v", err)
		}
	})

	t.Run("empty_source", func(t *testing.T) {
		svc, _ := newTestService(t, true)
		p := svc.CreatePlayer(svc.DefaultConfig())
		if err := svc.StartSession(p.ID, "  "); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("expected ErrInvalidSource, got %v", err)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		svc, f := newTestService(t, false)
		p := svc.CreatePlayer(svc.DefaultConfig())
		if err := svc.StartSession(p.ID, "http://h/master.m3u8"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got %v", err)
		}
		if f.last() != nil {
			t.Error("no engine should be created")
		}
	})

	t.Run("ready", func(t *testing.T) {
		svc, _ := newTestService(t, true)
		p := svc.CreatePlayer(svc.DefaultConfig())
		if err := svc.StartSession(p.ID, "http://h/master.m3u8"); err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		snap := p.Controller.Snapshot()
		if snap.State != streaming.StateReady || snap.IsLoading {
			t.Errorf("expected ready, got %+v", snap)
		}
		want := []string{"Auto", "1080p", "720p"}
		if !reflect.DeepEqual(snap.AvailableQualities, want) {
			t.Errorf("AvailableQualities: got %v want %v", snap.AvailableQualities, want)
		}
		if snap.CurrentQuality != "720p" || snap.Stats.CurrentBitrate != 2800000 {
			t.Errorf("level switch not applied: %+v", snap)
		}
	})
}

func TestService_ChangeQuality(t *testing.T) {
	svc, f := newTestService(t, true)
	p := svc.CreatePlayer(svc.DefaultConfig())
	if err := svc.StartSession(p.ID, "http://h/master.m3u8"); err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangeQuality(p.ID, "1080p"); err != nil {
		t.Fatalf("ChangeQuality: %v", err)
	}
	if f.last().pinned != 0 {
		t.Errorf("expected pin to level 0, got %d", f.last().pinned)
	}
	if err := svc.ChangeQuality(p.ID, streaming.AutoQuality); err != nil {
		t.Fatal(err)
	}
	if f.last().pinned != -1 {
		t.Errorf("expected auto selection, got %d", f.last().pinned)
	}
	if err := svc.ChangeQuality("missing", "720p"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestService_SeekToChunk_and_playback(t *testing.T) {
	svc, _ := newTestService(t, true)
	p := svc.CreatePlayer(svc.DefaultConfig())
	if err := svc.StartSession(p.ID, "http://h/master.m3u8"); err != nil {
		t.Fatal(err)
	}

	if err := svc.SeekToChunk(p.ID, 3); err != nil {
		t.Fatalf("SeekToChunk: %v", err)
	}
	if got := p.Playhead.CurrentTime(); got != 30 {
		t.Errorf("CurrentTime: got %v want 30", got)
	}

	if err := svc.SetPlaying(p.ID, true); err != nil || !p.Playhead.Playing() {
		t.Errorf("Play: err=%v playing=%v", err, p.Playhead.Playing())
	}
	if err := svc.SetPlaying(p.ID, false); err != nil || p.Playhead.Playing() {
		t.Errorf("Pause: err=%v playing=%v", err, p.Playhead.Playing())
	}
}

func TestService_StopSession_and_DeletePlayer(t *testing.T) {
	svc, _ := newTestService(t, true)
	p := svc.CreatePlayer(svc.DefaultConfig())
	if err := svc.StartSession(p.ID, "http://h/master.m3u8"); err != nil {
		t.Fatal(err)
	}

	if err := svc.StopSession(p.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if got := p.Controller.Snapshot().State; got != streaming.StateDestroyed {
		t.Errorf("state after stop: got %v", got)
	}
	if _, err := svc.Player(p.ID); err != nil {
		t.Error("stopped player should stay registered")
	}

	if err := svc.DeletePlayer(p.ID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}
	if err := svc.DeletePlayer(p.ID); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("second DeletePlayer: expected ErrPlayerNotFound, got %v", err)
	}
}

func TestService_Close(t *testing.T) {
	svc, _ := newTestService(t, true)
	svc.CreatePlayer(svc.DefaultConfig())
	svc.CreatePlayer(svc.DefaultConfig())
	svc.Close()
	if svc.ActivePlayerCount() != 0 {
		t.Errorf("Close should remove all players, %d left", svc.ActivePlayerCount())
	}
}
