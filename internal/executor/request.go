package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies a submission request.
type Kind int

const (
	KindReset Kind = iota + 1
	KindCancel
	KindSubmit
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindCancel:
		return "cancel"
	case KindSubmit:
		return "submit"
	case KindCommand:
		return "command"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Request is the JSON value written to the submission key:
//
//	{"mode": "reset"}
//	{"filename": "x.sdf", "mode": "cancel"}
//	{"filename": "x.sdf", "mode": "asap" | "buffer"}
//	{"mjd": 60000.5, "command": "settings.update(...)", "mode": "buffer"}
type Request struct {
	Mode     string  `json:"mode,omitempty"`
	Filename string  `json:"filename,omitempty"`
	MJD      float64 `json:"mjd,omitempty"`
	Command  string  `json:"command,omitempty"`
}

// Kind reports what the request asks for.
func (r Request) Kind() (Kind, error) {
	mode := strings.ToLower(strings.TrimSpace(r.Mode))
	switch {
	case mode == "reset":
		return KindReset, nil
	case mode == "cancel":
		if strings.TrimSpace(r.Filename) == "" {
			return 0, fmt.Errorf("%w: cancel needs a filename", ErrBadRequest)
		}
		return KindCancel, nil
	case strings.TrimSpace(r.Command) != "":
		return KindCommand, nil
	case strings.TrimSpace(r.Filename) != "":
		if mode != "" && mode != "buffer" && mode != "asap" {
			return 0, fmt.Errorf("%w: unknown mode %q", ErrBadRequest, r.Mode)
		}
		return KindSubmit, nil
	default:
		return 0, fmt.Errorf("%w: %+v", ErrBadRequest, r)
	}
}

func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if _, err := r.Kind(); err != nil {
		return Request{}, err
	}
	return r, nil
}
