package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAncillary = "q: title: Will BTC close above 100k?, description: Resolves on the daily close., res_data: p1: 0, p2: 1, p3: 0.5"

func TestDecodeAncillary_FullGrammar(t *testing.T) {
	a, err := DecodeAncillary([]byte(sampleAncillary))
	require.NoError(t, err)
	assert.Equal(t, "Will BTC close above 100k?", a.Title)
	assert.Equal(t, "Resolves on the daily close.", a.Description)
	assert.Equal(t, "p1: 0, p2: 1, p3: 0.5", a.ResolutionData)
	assert.Equal(t, sampleAncillary, a.Raw)
}

func TestDecodeAncillary_InitializerSuffix(t *testing.T) {
	raw := sampleAncillary + ",initializer:91430cad2d3975766499717fa0d66a78d814e5c5"
	a, err := DecodeAncillary([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x91430cad2d3975766499717fa0d66a78d814e5c5"), a.Initializer)
	assert.Equal(t, "p1: 0, p2: 1, p3: 0.5", a.ResolutionData, "suffix is not part of res_data")
}

func TestDecodeAncillary_TitleOnly(t *testing.T) {
	a, err := DecodeAncillary([]byte("q: title: Rain tomorrow?"))
	require.NoError(t, err)
	assert.Equal(t, "Rain tomorrow?", a.Title)
	assert.Empty(t, a.Description)
	assert.Empty(t, a.ResolutionData)
}

func TestDecodeAncillary_CaseInsensitiveKeys(t *testing.T) {
	a, err := DecodeAncillary([]byte("q: Title: Snow?, Description: Any snow., Res_Data: p1: 0, p2: 1"))
	require.NoError(t, err)
	assert.Equal(t, "Snow?", a.Title)
	assert.Equal(t, "Any snow.", a.Description)
}

func TestDecodeAncillary_NoTitle(t *testing.T) {
	a, err := DecodeAncillary([]byte("just some text"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing title", pe.Reason)
	assert.Equal(t, UnknownTitle, a.Title)
	assert.Equal(t, "just some text", a.Raw)
}

func TestDecodeAncillary_Empty(t *testing.T) {
	a, err := DecodeAncillary(nil)
	assert.Error(t, err)
	assert.Equal(t, UnknownTitle, a.Title)
}

func TestDecodeAncillary_InvalidUTF8(t *testing.T) {
	a, err := DecodeAncillary([]byte{0xff, 0xfe})
	assert.Error(t, err)
	assert.Equal(t, UnknownTitle, a.Title)
	assert.Equal(t, "0xfffe", a.Raw)
}

func TestEncodeAncillary_RoundTrip(t *testing.T) {
	in := Ancillary{Title: "Who wins?", Description: "Final score.", ResolutionData: "p1: 0, p2: 1"}
	raw := EncodeAncillary(in)
	assert.Equal(t, "q: title: Who wins?, description: Final score., res_data: p1: 0, p2: 1", string(raw))

	out, err := DecodeAncillary(raw)
	require.NoError(t, err)
	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.ResolutionData, out.ResolutionData)
}

// --- ResolutionOptions ---

func TestResolutionOptions(t *testing.T) {
	a, _ := DecodeAncillary([]byte(sampleAncillary))
	assert.Equal(t, []ResolutionOption{
		{Label: "p1", Value: "0"},
		{Label: "p2", Value: "1"},
		{Label: "p3", Value: "0.5"},
	}, a.ResolutionOptions())

	assert.Nil(t, Ancillary{ResolutionData: "none"}.ResolutionOptions())
}
