package connectivity

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_StartsUnknownAndDisconnected(t *testing.T) {
	s := NewSignal()
	assert.Equal(t, Unknown, s.Current())
	assert.False(t, s.Connected(), "unknown must never count as connected")
}

func TestSignal_Set(t *testing.T) {
	s := NewSignal()

	assert.True(t, s.Set(Online))
	assert.True(t, s.Connected())
	assert.False(t, s.Set(Online), "same state is not a change")

	assert.True(t, s.Set(Offline))
	assert.False(t, s.Connected())
}

func TestSignal_SubscribeCoalesces(t *testing.T) {
	s := NewSignal()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(Online)
	s.Set(Offline)
	s.Set(Online)

	select {
	case got := <-ch:
		assert.Equal(t, Online, got, "reader sees the latest state")
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected backlog value %v", got)
	default:
	}
}

func TestSignal_CancelClosesChannel(t *testing.T) {
	s := NewSignal()
	ch, cancel := s.Subscribe()

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { s.Set(Online) })
}

func TestSignal_ConcurrentUse(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Set(Online)
			} else {
				s.Set(Offline)
			}
		}(i)
		go func() {
			defer wg.Done()
			_, cancel := s.Subscribe()
			_ = s.Connected()
			cancel()
		}()
	}
	wg.Wait()
}

func TestState_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]State{"state": Offline})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"offline"}`, string(b))

	var got struct {
		State State `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"state":"online"}`), &got))
	assert.Equal(t, Online, got.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"maybe"}`), &got))
}
