package relay

import (
	"errors"
	"fmt"
)

// ErrBadKey is returned when a push or view key matches no channel. For a
// pusher this surfaces as 401 and is terminal; for a viewer it becomes a
// rejected frame on the stream.
var ErrBadKey = errors.New("unknown key")

// Channel couples a capture-side push key with the view key spectators
// subscribe by. Knowing the view key grants read access to that route and
// nothing else.
type Channel struct {
	Name    string `json:"name"`
	PushKey string `json:"pushKey"`
	ViewKey string `json:"viewKey"`
}

// KeyResolver maps credentials to channels.
type KeyResolver interface {
	ByPushKey(key string) (Channel, error)
	ByViewKey(key string) (Channel, error)
	Channels() []Channel
}

// StaticKeys resolves keys from a fixed table, the relay config's channel
// list.
type StaticKeys struct {
	byPush map[string]Channel
	byView map[string]Channel
	order  []Channel
}

// NewStaticKeys builds a resolver from the given channels. Keys must be
// non-empty and unique across both kinds so one credential never means two
// things.
func NewStaticKeys(channels []Channel) (*StaticKeys, error) {
	s := &StaticKeys{
		byPush: make(map[string]Channel, len(channels)),
		byView: make(map[string]Channel, len(channels)),
		order:  append([]Channel(nil), channels...),
	}
	used := make(map[string]bool, 2*len(channels))
	for _, ch := range channels {
		if ch.PushKey == "" || ch.ViewKey == "" {
			return nil, fmt.Errorf("channel %q: push and view keys must be set", ch.Name)
		}
		if used[ch.PushKey] {
			return nil, fmt.Errorf("channel %q: push key already in use", ch.Name)
		}
		used[ch.PushKey] = true
		if used[ch.ViewKey] {
			return nil, fmt.Errorf("channel %q: view key already in use", ch.Name)
		}
		used[ch.ViewKey] = true
		s.byPush[ch.PushKey] = ch
		s.byView[ch.ViewKey] = ch
	}
	return s, nil
}

func (s *StaticKeys) ByPushKey(key string) (Channel, error) {
	ch, ok := s.byPush[key]
	if !ok {
		return Channel{}, fmt.Errorf("push key: %w", ErrBadKey)
	}
	return ch, nil
}

func (s *StaticKeys) ByViewKey(key string) (Channel, error) {
	ch, ok := s.byView[key]
	if !ok {
		return Channel{}, fmt.Errorf("view key: %w", ErrBadKey)
	}
	return ch, nil
}

func (s *StaticKeys) Channels() []Channel {
	return append([]Channel(nil), s.order...)
}
