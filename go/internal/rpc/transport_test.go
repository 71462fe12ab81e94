package rpc

import (
	"testing"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTargetIncludes(t *testing.T) {
	cases := []struct {
		name      string
		target    Target
		recipient string
		want      bool
	}{
		{"all reaches sender", All, "a", true},
		{"all reaches others", All, "b", true},
		{"buffered reaches sender", AllBuffered, "a", true},
		{"others skips sender", Others, "a", false},
		{"others reaches peer", Others, "b", true},
		{"targeted hits peer", To("b"), "b", true},
		{"targeted misses sender", To("b"), "a", false},
		{"unknown kind", Target{Kind: "nobody"}, "b", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.target.Includes("a", models.PeerID(tc.recipient)))
		})
	}
}

func TestTargetBufferedAndString(t *testing.T) {
	assert.True(t, AllBuffered.Buffered())
	assert.False(t, All.Buffered())
	assert.False(t, To("x").Buffered())

	assert.Equal(t, "others", Others.String())
	assert.Equal(t, "peer:x", To("x").String())
}
