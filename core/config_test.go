package core_test

import (
	"net/mail"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/beet/core"
)

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (r *warnRecorder) Debug(string, ...interface{}) {}
func (r *warnRecorder) Info(string, ...interface{})  {}
func (r *warnRecorder) Error(string, ...interface{}) {}
func (r *warnRecorder) Fatal(string, ...interface{}) {}
func (r *warnRecorder) Warn(msg string, _ ...interface{}) {
	r.mu.Lock()
	r.warns = append(r.warns, msg)
	r.mu.Unlock()
}

func TestConfig_NotifyAddresses(t *testing.T) {
	tests := []struct {
		name      string
		notify    []string
		want      []mail.Address
		wantWarns int
	}{
		{name: "none", notify: nil, want: []mail.Address{}},
		{
			name:   "one per entry",
			notify: []string{"coach@beet.local", "Lead <lead@beet.local>"},
			want:   []mail.Address{{Address: "coach@beet.local"}, {Name: "Lead", Address: "lead@beet.local"}},
		},
		{
			name:   "comma separated",
			notify: []string{"coach@beet.local, lead@beet.local,"},
			want:   []mail.Address{{Address: "coach@beet.local"}, {Address: "lead@beet.local"}},
		},
		{
			name:      "invalid skipped",
			notify:    []string{"coach@beet.local,not-an-address"},
			want:      []mail.Address{{Address: "coach@beet.local"}},
			wantWarns: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Email.Notify = tt.notify
			logger := new(warnRecorder)

			assert.Equal(t, tt.want, conf.NotifyAddresses(logger))
			assert.Len(t, logger.warns, tt.wantWarns)
		})
	}
}

func TestNewConfig_NotifyFromEnv(t *testing.T) {
	t.Setenv("ENV", "TEST")
	t.Setenv("TEST_EMAIL_NOTIFY", "coach@beet.local,lead@beet.local")

	conf := core.NewConfig()
	assert.Equal(t,
		[]mail.Address{{Address: "coach@beet.local"}, {Address: "lead@beet.local"}},
		conf.NotifyAddresses(new(warnRecorder)),
	)
}
