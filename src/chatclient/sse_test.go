package chatclient

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEDataKeepsPayloadWhitespace(t *testing.T) {
	tests := []struct {
		name string
		body string
		want sseEvent
	}{
		{
			name: "one leading space stripped",
			body: "data:  two spaces\n\n",
			want: sseEvent{Data: " two spaces"},
		},
		{
			name: "trailing space kept",
			body: "event: token\ndata: tail \n\n",
			want: sseEvent{Event: "token", Data: "tail "},
		},
		{
			name: "lines joined",
			body: "data: x\ndata:y\n\n",
			want: sseEvent{Data: "x\ny"},
		},
		{
			name: "blank data line",
			body: "data:\ndata: z\n\n",
			want: sseEvent{Data: "\nz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSSEReader(strings.NewReader(tt.body))
			ev, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)

			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}
