package docinbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	ib := New(Options{Host: "drop.partner.example"})

	assert.Equal(t, 30*time.Second, ib.opts.Timeout)
	assert.Equal(t, "anonymous", ib.opts.User)
	assert.Equal(t, "anonymous@", ib.opts.Password)
}

func TestNew_KeepsCredentials(t *testing.T) {
	ib := New(Options{Host: "drop.partner.example", User: "meridian", Password: "hunter2"})

	assert.Equal(t, "meridian", ib.opts.User)
	assert.Equal(t, "hunter2", ib.opts.Password)
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "bare host gets default port", host: "drop.partner.example", want: "drop.partner.example:21"},
		{name: "explicit port kept", host: "drop.partner.example:2121", want: "drop.partner.example:2121"},
		{name: "ip with port kept", host: "10.4.2.9:21", want: "10.4.2.9:21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ib := New(Options{Host: tt.host})
			assert.Equal(t, tt.want, ib.hostPort())
		})
	}
}

func TestLoanDir(t *testing.T) {
	ib := New(Options{Host: "drop.partner.example", Root: "/loans"})

	assert.Equal(t, "/loans/L-2024-0042", ib.loanDir("L-2024-0042"))

	// Root without a leading slash still joins cleanly.
	ib = New(Options{Host: "drop.partner.example", Root: "loans/incoming"})
	assert.Equal(t, "loans/incoming/L-2024-0042", ib.loanDir("L-2024-0042"))
}
