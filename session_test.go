package main

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestGenerateUUIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestCreateSession(t *testing.T) {
	sm := NewSessionManager(nil)
	sess, err := sm.CreateSession("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Game.Stop()

	if !uuidRegex.MatchString(sess.ID) {
		t.Errorf("session ID %q is not a valid UUID v4", sess.ID)
	}
	if sess.Scenario != defaultScenario || sess.Name != defaultScenario {
		t.Errorf("defaults not applied: %+v", sess)
	}
	if sm.GetSession(sess.ID) != sess {
		t.Error("session should be retrievable")
	}

	long, err := sm.CreateSession(strings.Repeat("x", 50), "push-chain")
	if err != nil {
		t.Fatal(err)
	}
	defer long.Game.Stop()
	if len(long.Name) != maxSessionName {
		t.Errorf("name should be truncated to %d, got %d", maxSessionName, len(long.Name))
	}

	if _, err := sm.CreateSession("bad", "nope"); !errors.Is(err, ErrUnknownScenario) {
		t.Errorf("unknown scenario: %v", err)
	}
}

func TestListSessionsSorted(t *testing.T) {
	sm := NewSessionManager(nil)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		sess, err := sm.CreateSession(name, "")
		if err != nil {
			t.Fatal(err)
		}
		defer sess.Game.Stop()
	}
	list := sm.ListSessions()
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	if list[0].Name != "alpha" || list[2].Name != "charlie" {
		t.Errorf("unsorted: %+v", list)
	}
	if list[0].Bodies == 0 {
		t.Error("body count should be reported")
	}
}

func TestControlClaims(t *testing.T) {
	s := &Session{}
	if _, ok := s.claimControl("a", false); !ok {
		t.Fatal("first claim should succeed")
	}
	if prev, ok := s.claimControl("b", false); ok || prev != "a" {
		t.Errorf("second claim: prev=%q ok=%v", prev, ok)
	}
	if prev, ok := s.claimControl("b", true); !ok || prev != "a" {
		t.Errorf("forced claim: prev=%q ok=%v", prev, ok)
	}
	s.releaseControl("a")
	if s.Controller() != "b" {
		t.Error("release by a non-controller should be ignored")
	}
	s.releaseControl("b")
	if s.Controller() != "" {
		t.Error("controller should be cleared")
	}
}

func TestRemoveLastClientClosesSession(t *testing.T) {
	sm := NewSessionManager(nil)
	sess, err := sm.CreateSession("room", "")
	if err != nil {
		t.Fatal(err)
	}
	sess.Game.AddClient("c1", &mockBroadcaster{})
	sess.Game.AddClient("c2", &mockBroadcaster{})
	sess.claimControl("c1", false)

	sm.RemoveClient(sess.ID, "c1")
	if sess.Controller() != "" {
		t.Error("leaving controller should release control")
	}
	if sm.GetSession(sess.ID) == nil {
		t.Fatal("session with clients left should stay")
	}
	sm.RemoveClient(sess.ID, "c2")
	if sm.GetSession(sess.ID) != nil {
		t.Error("empty session should be removed")
	}
	if sm.Count() != 0 {
		t.Errorf("count = %d", sm.Count())
	}
}
