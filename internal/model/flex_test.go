package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"number", `42000.5`, 42000.5, false},
		{"string number", `"2200.25"`, 2200.25, false},
		{"string with spaces", `" 7 "`, 7, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"high precision string", `"123456789.123456"`, 123456789.123456, false},
		{"garbage", `"abc"`, 0, true},
		{"object", `{}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexFloat
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Float64())
		})
	}
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`"true"`, true},
		{`"no"`, false},
		{`null`, false},
	}
	for _, tt := range tests {
		var b FlexBool
		require.NoError(t, json.Unmarshal([]byte(tt.in), &b), tt.in)
		assert.Equal(t, tt.want, b.Bool(), tt.in)
	}
}

func TestFlexTime(t *testing.T) {
	var ft FlexTime
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-15T12:00:00Z"`), &ft))
	assert.Equal(t, int64(1736942400), ft.Unix())

	require.NoError(t, json.Unmarshal([]byte(`1700000000`), &ft))
	assert.Equal(t, int64(1700000000), ft.Unix())

	require.NoError(t, json.Unmarshal([]byte(`"1700000000"`), &ft))
	assert.Equal(t, int64(1700000000), ft.Unix())

	require.NoError(t, json.Unmarshal([]byte(`null`), &ft))
	assert.True(t, ft.IsZero())

	fallback := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fallback, ft.Or(fallback))

	require.Error(t, json.Unmarshal([]byte(`"not a time"`), &ft))
}

func TestFlexStrings(t *testing.T) {
	var fs FlexStrings
	require.NoError(t, json.Unmarshal([]byte(`["BTCUSDT","ETHUSDT"]`), &fs))
	assert.Equal(t, FlexStrings{"BTCUSDT", "ETHUSDT"}, fs)

	require.NoError(t, json.Unmarshal([]byte(`"BTCUSDT, ETHUSDT"`), &fs))
	assert.Equal(t, FlexStrings{"BTCUSDT", "ETHUSDT"}, fs)

	require.NoError(t, json.Unmarshal([]byte(`null`), &fs))
	assert.Nil(t, fs)
}

func TestPricesInNested(t *testing.T) {
	var p PricesIn
	body := `{"time_utc":"2025-01-15T12:00:00Z","prices":{"BTCUSDT":42000.5,"ETHUSDT":"2200.25"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, 42000.5, p.Prices["BTCUSDT"])
	assert.Equal(t, 2200.25, p.Prices["ETHUSDT"])
	assert.Equal(t, int64(1736942400), p.TimeUTC.Unix())
}

func TestPricesInFlat(t *testing.T) {
	var p PricesIn
	require.NoError(t, json.Unmarshal([]byte(`{"BTCUSDT":1,"ETHUSDT":2}`), &p))
	assert.Len(t, p.Prices, 2)
	assert.Equal(t, 1.0, p.Prices["BTCUSDT"])
	assert.True(t, p.TimeUTC.IsZero())
}

func TestPricesInInvalid(t *testing.T) {
	var p PricesIn
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"BTCUSDT":"abc"}`), &p))
}

func TestParseDetails(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, ParseDetails(""))
	assert.Equal(t, map[string]interface{}{"k": "v"}, ParseDetails(`{"k":"v"}`))
	assert.Equal(t, map[string]interface{}{"raw": "not json"}, ParseDetails("not json"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 55.5, Clamp(55.5, 0, 100))
}

func TestInitialPet(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	p := InitialPet(now)
	assert.Equal(t, "egg", p.Stage)
	assert.Equal(t, "focused", p.Mood)
	assert.Equal(t, 100.0, p.Health)
	assert.Equal(t, 50.0, p.Hunger)
	assert.Equal(t, 0.0, p.Growth)
	assert.Empty(t, p.FaintedUntil)
	assert.Equal(t, "NORMAL", p.SurvivalMode)
}
