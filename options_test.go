package playerwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	m := newTestMonitor(t, &scriptedFetcher{}, &recordingNotifier{})

	assert.Equal(t, defaultCheckTimeout, m.checkTimeout)
	assert.NotNil(t, m.extractor)
	assert.Nil(t, m.ids)
	assert.False(t, m.IsRunning())
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero interval", WithInterval(0)},
		{"negative interval", WithInterval(-time.Second)},
		{"negative first delay", WithFirstCheckDelay(-time.Millisecond)},
		{"zero check timeout", WithCheckTimeout(0)},
		{"nil extractor", WithExtractor(nil)},
		{"nil identifier store", WithIdentifierStore(nil)},
		{"nil formatter", WithMessageFormatter(nil)},
		{"nil logger", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&scriptedFetcher{}, &recordingNotifier{}, tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestOptions_Valid(t *testing.T) {
	cfg := &monitorConfig{}

	for _, opt := range []Option{
		WithInterval(30 * time.Second),
		WithFirstCheckDelay(0),
		WithCheckTimeout(time.Minute),
		WithExtractor(DefaultExtractor),
		WithIdentifierStore(&memoryIDStore{}),
		WithMessageFormatter(FormatChange),
		WithLogger(testLogger()),
		WithChangeCallback(nil),
	} {
		require.NoError(t, opt(cfg))
	}

	assert.Equal(t, 30*time.Second, cfg.interval)
	assert.Zero(t, cfg.firstCheckDelay)
	assert.Equal(t, time.Minute, cfg.checkTimeout)
	assert.NotNil(t, cfg.identifierStore)
	assert.Empty(t, cfg.changeCallbacks)
}

func TestFormatChange(t *testing.T) {
	event := ChangeEvent{Identifier: "1", From: Offline(), To: OfflineSeen("5 min ago")}

	assert.Equal(t, "⚠️ Status Change!\nNew Status: Offline (Last seen: 5 min ago)", FormatChange(event))
}
