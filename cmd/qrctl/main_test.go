package main

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/gm2-qr-services/internal/comm"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAt(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate([]string{"-card", "1234", "-constant", "ABCD", "-device", "dev1", "-at", "1700000000"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "GM2:1234:ABCD:1700000000:BB0CC97E\n", out.String())
}

func TestGenerateNow(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate([]string{"-card", "1234", "-constant", "ABCD", "-device", "dev1"}, &out)
	require.NoError(t, err)

	p, err := token.Parse(out.String()[:out.Len()-1])
	require.NoError(t, err)
	assert.True(t, p.Verify("dev1"))
}

func TestVerify(t *testing.T) {
	var out bytes.Buffer
	err := runVerify([]string{"-payload", "GM2:1234:ABCD:1700000000:BB0CC97E", "-device", "dev1"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ok card=1234")

	err = runVerify([]string{"-payload", "GM2:1234:ABCD:1700000000:BB0CC97E", "-device", "dev2"}, &out)
	assert.Error(t, err)

	err = runVerify([]string{"-payload", "garbage", "-device", "dev1"}, &out)
	assert.ErrorIs(t, err, token.ErrMalformedPayload)
}

func TestWatchRedrawsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	args := []string{"-card", "1234", "-constant", "ABCD", "-device", "dev1", "-interval", "50ms"}
	require.NoError(t, runWatch(ctx, args, strings.NewReader("\n"), &out))

	payloads := regexp.MustCompile(`GM2:1234:ABCD:[0-9]+:[0-9A-F]{8}`).FindAllString(out.String(), -1)
	// the first frame, the skip and at least one tick
	assert.GreaterOrEqual(t, len(payloads), 3)
	assert.Contains(t, out.String(), "Refreshing in 1s")

	last := payloads[len(payloads)-1]
	assert.True(t, strings.HasSuffix(out.String(), "stopped, last payload "+last+"\n"))

	p, err := token.Parse(last)
	require.NoError(t, err)
	assert.True(t, p.Verify("dev1"))
}

func TestWatchRequiresCredentials(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	var out bytes.Buffer
	err := runWatch(context.Background(), []string{"-card", "1234", "-device", "", "-constant", ""}, strings.NewReader(""), &out)
	assert.ErrorIs(t, err, models.ErrMissingFields)
	assert.Empty(t, out.String())
}

func TestTailRequiresNats(t *testing.T) {
	t.Setenv("NATS_URL", "")

	var out bytes.Buffer
	err := runTail(context.Background(), nil, &out)
	assert.EqualError(t, err, "set -nats or NATS_URL")
}

func TestFormatRefresh(t *testing.T) {
	line := formatRefresh(comm.RefreshEvent{
		SocketId:   "s1",
		CardNumber: "1234",
		Timestamp:  1700000000,
		Suffix:     "BB0CC97E",
		Seq:        3,
	})
	assert.Equal(t, "2023-11-14T22:13:20Z socket=s1 card=1234 seq=3 suffix=BB0CC97E", line)
}
