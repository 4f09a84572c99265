package sdf

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

const powerSDF = `
PI_ID            7
PI_NAME          Observer

PROJECT_ID       0
SESSION_ID       1042
SESSION_MODE     POWER
SESSION_DRX_BEAM 4
CONFIG_FILE      /etc/lwa/config.yaml
DO_CAL           False

OBS_ID          1
OBS_TARGET      CasA
OBS_START_MJD   60310
OBS_START_MPM   43200000
OBS_START       UTC 2024 01 01 12:00:00.000
OBS_DUR         5000
OBS_INT_TIME    10
OBS_MODE        TRK_RADEC
OBS_RA          10.000000000
OBS_DEC         +45.000000000

OBS_ID          2
OBS_TARGET      Sun
OBS_START       UTC 2024 Jan 01 13:00:00
OBS_DUR         60000
OBS_MODE        TRK_RADEC
`

func read(t *testing.T, text string) *Description {
	t.Helper()
	d, err := HeuristicReader{}.Read(strings.NewReader(text))
	require.NoError(t, err)
	return d
}

func TestHeuristicReaderSplitsOnRepeatedKey(t *testing.T) {
	d := read(t, powerSDF)

	require.Len(t, d.Observations, 2)
	id, _ := d.Session.Get("SESSION_ID")
	assert.Equal(t, "1042", id)
	assert.False(t, d.Session.Has("OBS_ID"))
	assert.Equal(t, []string{"UTC", "2024", "01", "01", "12:00:00.000"}, d.Observations[0].Fields("OBS_START"))

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var m map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "POWER", m["SESSION"]["SESSION_MODE"])
	obs1 := m["OBSERVATIONS"]["OBSERVATION_1"].(map[string]any)
	assert.Equal(t, "CasA", obs1["OBS_TARGET"])
	assert.Equal(t, []any{"UTC", "2024", "01", "01", "12:00:00.000"}, obs1["OBS_START"])
	assert.Contains(t, m["OBSERVATIONS"], "OBSERVATION_2")
}

func TestDecodePowerSession(t *testing.T) {
	s, obs, err := Decode(read(t, powerSDF), logx.Nop())
	require.NoError(t, err)

	assert.Equal(t, Session{
		ID:         "1042",
		Type:       ObsPower,
		ConfigFile: "/etc/lwa/config.yaml",
		DoCal:      false,
		Beam:       4,
		PIID:       "7",
		PIName:     "Observer",
		ProjectID:  "0",
	}, s)
	assert.Equal(t, "1042_POWER4", s.ModeName())

	require.Len(t, obs, 2)
	o := obs[0]
	assert.Equal(t, 1, o.ID)
	assert.InDelta(t, 60310.5, o.Start, 1e-9)
	assert.Equal(t, int64(5000), o.Duration)
	assert.Equal(t, 10, o.IntTime)
	assert.Equal(t, ModeTrackRADec, o.Mode)
	assert.Equal(t, TargetRADec, o.Target.Kind)
	assert.InDelta(t, 150.0, o.Target.RA, 1e-9)
	assert.InDelta(t, 45.0, o.Target.Dec, 1e-9)
	assert.Nil(t, o.Tuning)

	sun := obs[1]
	assert.Equal(t, ModeTrackSun, sun.Mode)
	assert.Equal(t, Target{Kind: TargetName, Name: "Sun"}, sun.Target)
	assert.InDelta(t, 60310+13.0/24, sun.Start, 1e-9)
	assert.Equal(t, 1, sun.IntTime)
}

func TestDecodeMissingSessionModeAssumesVolt(t *testing.T) {
	text := `SESSION_ID 9
SESSION_DRX_BEAM 1
OBS_ID 1
OBS_START_MJD 60000
OBS_START_MPM 0
OBS_DUR 1000
OBS_TARGET CygA
OBS_FREQ1 1161394218
OBS_FREQ2 1599656187
OBS_BW 7
`
	s, obs, err := Decode(read(t, text), logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, ObsVolt, s.Type)
	assert.True(t, s.DoCal)
	require.Len(t, obs, 1)
	require.NotNil(t, obs[0].Tuning)
	assert.Equal(t, GainUnset, obs[0].Tuning.Gain)
	assert.Equal(t, int64(1161394218), obs[0].Tuning.Freq1)
}

func TestDecodeVoltRequiresTuning(t *testing.T) {
	text := `SESSION_ID 9
SESSION_MODE VOLT
SESSION_DRX_BEAM 1
OBS_ID 1
OBS_START_MJD 60000
OBS_START_MPM 0
OBS_DUR 1000
OBS_TARGET CygA
OBS_STP_FREQ1[1] 1161394218
OBS_BW 7
`
	_, _, err := Decode(read(t, text), logx.Nop())
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "OBSERVATION_1.OBS_FREQ2", pe.Field)
	assert.Contains(t, pe.Error(), "stepped")
}

func TestDecodeValidation(t *testing.T) {
	base := func(beam, dur, intTime string) string {
		return "SESSION_ID 1\nSESSION_MODE POWER\nSESSION_DRX_BEAM " + beam +
			"\nOBS_ID 1\nOBS_START_MJD 60000\nOBS_START_MPM 0\nOBS_DUR " + dur +
			"\nOBS_INT_TIME " + intTime + "\nOBS_TARGET CygA\n"
	}
	tests := []struct {
		name  string
		text  string
		field string
	}{
		{"beam too high", base("17", "1000", "1"), "SESSION_DRX_BEAM"},
		{"beam zero", base("0", "1000", "1"), "SESSION_DRX_BEAM"},
		{"zero duration", base("2", "0", "1"), "OBS_DUR"},
		{"negative duration", base("2", "-5", "1"), "OBS_DUR"},
		{"integration too long", base("2", "1000", "2048"), "OBS_INT_TIME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(read(t, tt.text), logx.Nop())
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDecodeParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no session id", "SESSION_MODE FAST\nOBS_ID 1\nOBS_DUR 10\nOBS_START_MJD 1\nOBS_START_MPM 0\n"},
		{"unknown mode", "SESSION_ID 1\nSESSION_MODE SPECTRO\nOBS_ID 1\n"},
		{"no start", "SESSION_ID 1\nSESSION_MODE FAST\nOBS_ID 1\nOBS_DUR 10\n"},
		{"bad start", "SESSION_ID 1\nSESSION_MODE FAST\nOBS_ID 1\nOBS_DUR 10\nOBS_START UTC 2024 Foo 01 00:00:00\n"},
		{"no beam", "SESSION_ID 1\nSESSION_MODE POWER\nOBS_ID 1\n"},
		{"bad do_cal", "SESSION_ID 1\nSESSION_MODE POWER\nSESSION_DRX_BEAM 2\nDO_CAL maybe\nOBS_ID 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(read(t, tt.text), logx.Nop())
			var pe *ParseError
			require.ErrorAs(t, err, &pe, "got %v", err)
		})
	}
}

func TestDecodeOutOfOrderIsNotFatal(t *testing.T) {
	text := `SESSION_ID 5
SESSION_MODE FAST
OBS_ID 1
OBS_START_MJD 60001
OBS_START_MPM 0
OBS_DUR 1000
OBS_ID 2
OBS_START_MJD 60000
OBS_START_MPM 0
OBS_DUR 1000
`
	s, obs, err := Decode(read(t, text), logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, "5_FAST", s.ModeName())
	assert.False(t, s.DoCal)
	assert.Zero(t, s.Beam)
	require.Len(t, obs, 2)
	assert.Greater(t, obs[0].Start, obs[1].Start)
}

func TestParseUTCForms(t *testing.T) {
	want := time.Date(2024, 3, 9, 4, 5, 6, 250_000_000, time.UTC)
	for _, f := range [][]string{
		{"UTC", "2024", "03", "09", "04:05:06.250"},
		{"UTC", "2024", "Mar", "9", "04:05:06.25"},
		{"2024-03-09", "04:05:06.25"},
		{"2024-03-09T04:05:06.25Z"},
	} {
		got, err := parseUTC(f)
		require.NoError(t, err, "%v", f)
		assert.True(t, want.Equal(got), "%v: got %v", f, got)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := []ObsType{ObsPower, ObsVolt, ObsVoltRaw, ObsFast, ObsSlow}

	for i := 0; i < 50; i++ {
		typ := types[rng.Intn(len(types))]
		s := Session{
			ID:         "77" + string(rune('0'+i%10)),
			Type:       typ,
			ConfigFile: "/etc/lwa/config.yaml",
			PIID:       "3",
			PIName:     "Observer",
			ProjectID:  "0",
		}
		if typ.UsesBeam() {
			s.Beam = 1 + rng.Intn(MaxBeam)
			s.DoCal = rng.Intn(2) == 0
			if rng.Intn(2) == 0 {
				s.CalDirectory = "/data/caltables/latest"
			}
		}

		start := 60000 + rng.Float64()*1000
		var obs []Observation
		for j := 0; j < 1+rng.Intn(3); j++ {
			o := Observation{
				ID:       j + 1,
				Start:    start,
				Duration: int64(1 + rng.Intn(3_600_000)),
			}
			start = o.End() + rng.Float64()*0.01
			if typ.UsesBeam() {
				o.IntTime = 1 + rng.Intn(MaxIntTime)
				switch rng.Intn(3) {
				case 0:
					o.Mode = ModeTrackRADec
					o.Target = Target{Kind: TargetRADec, Name: "src", RA: rng.Float64() * 360, Dec: rng.Float64()*180 - 90}
				case 1:
					o.Mode = ModeTrackJupiter
					o.Target = Target{Kind: TargetName, Name: "jupiter"}
				default:
					o.Mode = ModeAzAlt
					o.Target = Target{Kind: TargetAzAlt, Name: "zenith", Az: rng.Float64() * 360, Alt: rng.Float64() * 90}
				}
			}
			if typ.Voltage() {
				o.Tuning = &Tuning{Bandwidth: 1 + rng.Intn(7), Freq1: rng.Int63n(1 << 32), Freq2: rng.Int63n(1 << 32), Gain: rng.Intn(400)}
			}
			obs = append(obs, o)
		}

		text := WriteString(s, obs)
		gotS, gotObs, err := Decode(read(t, text), logx.Nop())
		require.NoError(t, err, text)
		assert.Equal(t, s, gotS)
		require.Len(t, gotObs, len(obs))
		for j := range obs {
			want, got := obs[j], gotObs[j]
			assert.LessOrEqual(t, math.Abs(want.Start-got.Start), mjd.Millis(1), "start drift, obs %d", j)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Duration, got.Duration)
			assert.Equal(t, want.Mode, got.Mode)
			assert.Equal(t, want.IntTime, got.IntTime)
			assert.Equal(t, want.Target.Kind, got.Target.Kind)
			assert.InDelta(t, want.Target.RA, got.Target.RA, 1e-6)
			assert.InDelta(t, want.Target.Dec, got.Target.Dec, 1e-6)
			assert.InDelta(t, want.Target.Az, got.Target.Az, 1e-6)
			assert.InDelta(t, want.Target.Alt, got.Target.Alt, 1e-6)
			assert.Equal(t, want.Tuning, got.Tuning)
		}
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(t.TempDir() + "/nope.sdf")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
}
