package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/fedwallet/internal/output"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

var errRaw = errors.New("socket closed")

func TestFormatter_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, &buf)
	assert.True(t, f.IsJSON())

	require.NoError(t, f.Print(map[string]string{"status": "approved"}))

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "approved", result["status"])
}

func TestFormatter_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	require.NoError(t, f.Print("hello world"))
	require.NoError(t, f.Printf("n=%d\n", 3))
	require.NoError(t, f.Print(42))
	assert.Equal(t, "hello world\nn=3\n42\n", buf.String())
	assert.Same(t, &buf, f.Writer())
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, output.FormatJSON, output.ParseFormat(" JSON "))
	assert.Equal(t, output.FormatText, output.ParseFormat("text"))
	assert.Equal(t, output.FormatAuto, output.ParseFormat("yaml"))
	assert.Equal(t, output.FormatAuto, output.ParseFormat(""))
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto))
	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
}

func TestAmountFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sats uint64
		sat  string
		btc  string
		usd  string
	}{
		{0, "0 sats", "0.00000000 BTC", "$0.00"},
		{999, "999 sats", "0.00000999 BTC", "$0.30"},
		{1000, "1,000 sats", "0.00001000 BTC", "$0.30"},
		{1_250_000, "1,250,000 sats", "0.01250000 BTC", "$375.00"},
		{100_000_000, "100,000,000 sats", "1.00000000 BTC", "$30000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.sat, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.sat, output.FormatSats(tt.sats))
			assert.Equal(t, tt.btc, output.FormatBTC(tt.sats))
			assert.Equal(t, tt.usd, output.FormatUSD(tt.sats, 30000))
		})
	}
}

func TestFormatError_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	err := fwerr.WithDetails(fwerr.Because(fwerr.ErrEngine, errRaw), map[string]string{
		"op":         "sync",
		"federation": "abc",
	})
	err = fwerr.WithSuggestion(err, "Retry later")
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Error: engine operation failed: socket closed\n"))
	assert.Less(t, strings.Index(out, "federation: abc"), strings.Index(out, "op: sync"))
	assert.Contains(t, out, "Suggestion: Retry later")
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()

	t.Run("wallet error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, fwerr.ErrBusy, output.FormatJSON))

		var got output.ErrorOutput
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "BUSY", got.Error.Code)
		assert.Equal(t, fwerr.ExitBusy, got.Error.ExitCode)
		assert.Empty(t, got.Error.Cause)
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, errRaw, output.FormatJSON))

		var got output.ErrorOutput
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "GENERAL_ERROR", got.Error.Code)
		assert.Equal(t, "socket closed", got.Error.Message)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, nil, output.FormatJSON))
		assert.Empty(t, buf.String())
	})
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()
	var text, js bytes.Buffer
	require.NoError(t, output.FormatSuccess(&text, "Federation added", output.FormatText))
	require.NoError(t, output.FormatSuccess(&js, "Federation added", output.FormatJSON))

	assert.Equal(t, "Federation added\n", text.String())
	assert.JSONEq(t, `{"status":"success","message":"Federation added"}`, js.String())
}

func TestMessages(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	output.Info(&buf, "syncing %d", 1)
	output.Warn(&buf, "slow")
	output.Success(&buf, "done")

	assert.Equal(t, "ℹ️  syncing 1\n⚠️  slow\n✅ done\n", buf.String())
}

func TestTable_Render(t *testing.T) {
	t.Parallel()
	tbl := output.NewTable("ID", "NAME", "BALANCE")
	tbl.AddRow("a1", "Bitcoin Principles", "1,000 sats")
	tbl.AddRow("b22", "Fedi", "")
	assert.Equal(t, 2, tbl.Len())

	want := "" +
		"ID   NAME                BALANCE\n" +
		"---  ------------------  ----------\n" +
		"a1   Bitcoin Principles  1,000 sats\n" +
		"b22  Fedi\n"
	assert.Equal(t, want, tbl.String())
}

func TestTable_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, output.NewTable().String())
}
