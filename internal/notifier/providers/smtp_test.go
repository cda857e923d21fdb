package providers

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	msg := string(Compose("pk@example.com", "me@example.com", "Oração pronta", "<p>hi</p>", "hi"))

	assert.Contains(t, msg, "From: pk@example.com\r\n")
	assert.Contains(t, msg, "To: me@example.com\r\n")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.NotContains(t, msg, "Subject: Oração")

	m := regexp.MustCompile(`boundary="([^"]+)"`).FindStringSubmatch(msg)
	require.Len(t, m, 2)
	boundary := m[1]
	assert.Equal(t, 2, strings.Count(msg, "--"+boundary+"\r\n"))
	assert.True(t, strings.HasSuffix(msg, "--"+boundary+"--\r\n"))

	plain := strings.Index(msg, "text/plain")
	html := strings.Index(msg, "text/html")
	assert.True(t, plain > 0 && html > plain)
}

func TestSend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSMTPSender("127.0.0.1", 1, "", "", "pk@example.com")
	assert.ErrorIs(t, s.Send(ctx, "me@example.com", "s", "h", "p"), context.Canceled)
}
