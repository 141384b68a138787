package relay

import (
	"errors"
	"testing"
)

func testChannels() []Channel {
	return []Channel{
		{Name: "alice", PushKey: "push-alice", ViewKey: "view-alice"},
		{Name: "bob", PushKey: "push-bob", ViewKey: "view-bob"},
	}
}

func TestStaticKeysResolves(t *testing.T) {
	keys, err := NewStaticKeys(testChannels())
	if err != nil {
		t.Fatalf("NewStaticKeys: %v", err)
	}

	ch, err := keys.ByPushKey("push-alice")
	if err != nil {
		t.Fatalf("ByPushKey: %v", err)
	}
	if ch.Name != "alice" {
		t.Errorf("ByPushKey resolved %q, want alice", ch.Name)
	}

	ch, err = keys.ByViewKey("view-bob")
	if err != nil {
		t.Fatalf("ByViewKey: %v", err)
	}
	if ch.Name != "bob" {
		t.Errorf("ByViewKey resolved %q, want bob", ch.Name)
	}

	// A view key never resolves as a push key, and vice versa.
	if _, err := keys.ByPushKey("view-alice"); !errors.Is(err, ErrBadKey) {
		t.Errorf("ByPushKey(view key): err = %v, want ErrBadKey", err)
	}
	if _, err := keys.ByViewKey("push-alice"); !errors.Is(err, ErrBadKey) {
		t.Errorf("ByViewKey(push key): err = %v, want ErrBadKey", err)
	}
	if _, err := keys.ByPushKey("nope"); !errors.Is(err, ErrBadKey) {
		t.Errorf("ByPushKey(unknown): err = %v, want ErrBadKey", err)
	}
}

func TestStaticKeysRejectsBadTables(t *testing.T) {
	tests := []struct {
		name     string
		channels []Channel
	}{
		{
			name:     "empty push key",
			channels: []Channel{{Name: "a", ViewKey: "v"}},
		},
		{
			name:     "empty view key",
			channels: []Channel{{Name: "a", PushKey: "p"}},
		},
		{
			name: "duplicate push key",
			channels: []Channel{
				{Name: "a", PushKey: "p", ViewKey: "v1"},
				{Name: "b", PushKey: "p", ViewKey: "v2"},
			},
		},
		{
			name: "view key reuses a push key",
			channels: []Channel{
				{Name: "a", PushKey: "p1", ViewKey: "v1"},
				{Name: "b", PushKey: "p2", ViewKey: "p1"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticKeys(tt.channels); err == nil {
				t.Error("NewStaticKeys accepted a bad table")
			}
		})
	}
}

func TestStaticKeysChannelsPreservesOrder(t *testing.T) {
	keys, err := NewStaticKeys(testChannels())
	if err != nil {
		t.Fatalf("NewStaticKeys: %v", err)
	}
	channels := keys.Channels()
	if len(channels) != 2 || channels[0].Name != "alice" || channels[1].Name != "bob" {
		t.Errorf("Channels() = %v, want config order", channels)
	}
}
