package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
)

type HTTPConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// HTTPController forwards each call as a JSON POST to a controller gateway:
// POST {URL}/{operation}. Any non-2xx reply is an error.
type HTTPController struct {
	base   *url.URL
	token  string
	client *http.Client
	log    logx.Logger
}

func NewHTTPController(cfg HTTPConfig, log logx.Logger) (*HTTPController, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("control: http driver requires a url")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("control: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("control: unsupported url scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPController{
		base:   u,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
		log:    log.With(logx.String("comp", "controller"), logx.String("driver", "http")),
	}, nil
}

type targetBody struct {
	Name  string      `json:"targetname,omitempty"`
	Coord *[2]float64 `json:"coord,omitempty"`
	Type  string      `json:"coordtype,omitempty"`
}

func (c *HTTPController) Init(ctx context.Context, configFile string) error {
	return c.post(ctx, "init", map[string]any{"config_file": configFile})
}

func (c *HTTPController) SetCalDirectory(ctx context.Context, dir string) error {
	return c.post(ctx, "cal_directory", map[string]any{"cal_directory": dir})
}

func (c *HTTPController) ConfigureResource(ctx context.Context, ids []string, calibrate bool) error {
	return c.post(ctx, "configure_xengine", map[string]any{"recorders": ids, "calibratebeams": calibrate})
}

func (c *HTTPController) StartRecorder(ctx context.Context, req StartRecorder) error {
	body := map[string]any{
		"recorders": req.IDs,
		"duration":  req.Duration.Milliseconds(),
		"time_avg":  req.TimeAvg.Milliseconds(),
	}
	if req.Now {
		body["t0"] = "now"
	} else {
		body["t0"] = req.Start
	}
	if v := req.Voltage; v != nil {
		body["teng_f1"] = v.Freq1Hz
		body["teng_f2"] = v.Freq2Hz
		body["f0"] = v.Bandwidth
		body["gain1"] = v.Gain1
		body["gain2"] = v.Gain2
	}
	return c.post(ctx, "start_dr", body)
}

func (c *HTTPController) StopRecorder(ctx context.Context, ids []string) error {
	return c.post(ctx, "stop_dr", map[string]any{"recorders": ids})
}

func (c *HTTPController) PointBeam(ctx context.Context, req PointBeam) error {
	var tgt targetBody
	switch req.Target.Kind {
	case sdf.TargetRADec:
		tgt.Coord = &[2]float64{req.Target.RA / 15, req.Target.Dec}
	case sdf.TargetAzAlt:
		tgt.Coord = &[2]float64{req.Target.Az, req.Target.Alt}
		tgt.Type = "azel"
	default:
		tgt.Name = req.Target.Name
	}
	return c.post(ctx, "control_bf", struct {
		Num      int     `json:"num"`
		Track    bool    `json:"track"`
		Duration float64 `json:"duration"`
		targetBody
	}{req.Beam, req.Track, req.Duration.Seconds(), tgt})
}

func (c *HTTPController) RunScript(ctx context.Context, script string) error {
	return c.post(ctx, "script", map[string]any{"script": script})
}

func (c *HTTPController) post(ctx context.Context, op string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := c.base.JoinPath(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	c.log.Debug("controller.call",
		logx.String("op", op),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
