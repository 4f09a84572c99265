package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
)

type gatewayCall struct {
	path string
	auth string
	body map[string]any
}

func newGateway(t *testing.T, status int) (*httptest.Server, func() []gatewayCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []gatewayCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		calls = append(calls, gatewayCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("boom"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []gatewayCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]gatewayCall(nil), calls...)
	}
}

func TestHTTPControllerPayloads(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK)
	ctl, err := New(Config{Driver: "http", HTTP: HTTPConfig{URL: srv.URL + "/api/", Token: "s3cret"}}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	cmds := []Command{
		InitController{ConfigFile: "/etc/lwa.yaml"},
		ConfigureResource{IDs: []string{"dr4"}, Calibrate: true},
		StartRecorder{IDs: []string{"dr4"}, Duration: 5 * time.Second, TimeAvg: 10 * time.Millisecond, Start: 60310.5},
		PointBeam{Beam: 4, Target: sdf.Target{Kind: sdf.TargetRADec, RA: 150, Dec: 45}, Track: true, Duration: 15 * time.Second},
		PointBeam{Beam: 4, Target: sdf.Target{Kind: sdf.TargetAzAlt, Az: 10, Alt: 80}, Duration: time.Second},
		StopRecorder{IDs: []string{"drvs"}},
		RunRawScript{Script: "settings.update('day')"},
		Note{Text: "observation complete"},
	}
	for _, c := range cmds {
		require.NoError(t, Dispatch(ctx, ctl, c), c.String())
	}

	got := calls()
	require.Len(t, got, 7, "notes never reach the controller")

	assert.Equal(t, "/api/init", got[0].path)
	assert.Equal(t, "Bearer s3cret", got[0].auth)
	assert.Equal(t, "/etc/lwa.yaml", got[0].body["config_file"])

	assert.Equal(t, "/api/configure_xengine", got[1].path)
	assert.Equal(t, true, got[1].body["calibratebeams"])

	assert.Equal(t, "/api/start_dr", got[2].path)
	assert.Equal(t, float64(5000), got[2].body["duration"])
	assert.Equal(t, float64(10), got[2].body["time_avg"])
	assert.Equal(t, 60310.5, got[2].body["t0"])

	assert.Equal(t, "/api/control_bf", got[3].path)
	assert.Equal(t, []any{10.0, 45.0}, got[3].body["coord"])
	assert.Equal(t, true, got[3].body["track"])
	assert.Equal(t, 15.0, got[3].body["duration"])
	assert.NotContains(t, got[3].body, "coordtype")

	assert.Equal(t, "azel", got[4].body["coordtype"])
	assert.Equal(t, false, got[4].body["track"])

	assert.Equal(t, "/api/stop_dr", got[5].path)
	assert.Equal(t, "/api/script", got[6].path)
}

func TestDispatchWrapsFailures(t *testing.T) {
	srv, _ := newGateway(t, http.StatusBadGateway)
	ctl, err := NewHTTPController(HTTPConfig{URL: srv.URL}, logx.Nop())
	require.NoError(t, err)

	err = Dispatch(context.Background(), ctl, StopRecorder{IDs: []string{"drvf"}})
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindStopRecorder, de.Kind)
	assert.Contains(t, err.Error(), "http 502")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Dispatch(ctx, NewLogController(logx.Nop()), Note{Text: "x"})
	require.ErrorAs(t, err, &de)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "serial"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = New(Config{Driver: "http"}, logx.Nop())
	require.Error(t, err)

	ctl, err := New(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LogController{}, ctl)
}

func TestCommandStrings(t *testing.T) {
	sr := StartRecorder{
		IDs:      []string{"drt1"},
		Duration: time.Minute,
		Now:      true,
		Voltage:  &VoltageSetup{Freq1Hz: 53e6, Freq2Hz: 73e6, Bandwidth: 7, Gain1: 0, Gain2: 20},
	}
	assert.Equal(t, "start_recorder([drt1], duration=1m0s, f1=53 MHz, f2=73 MHz, bw=7, gain=0/20, t0=now)", sr.String())
	assert.Equal(t, KindPointBeam.String(), "point_beam")
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
