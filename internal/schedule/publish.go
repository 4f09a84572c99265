package schedule

import (
	"context"
	"encoding/json"
	"errors"

	"lwaobs/internal/coord"
	"lwaobs/pkg/logx"
)

// Coordination store keys.
const (
	SubmitKey      = "/cmd/observing/submitsdf"
	ScheduleKey    = "/mon/observing/schedule"
	SubmittedKey   = "/mon/observing/submitted"
	DescriptionKey = "/mon/observing/sdfdict"
)

// Publisher mirrors the pending and submitted summaries and the loaded
// descriptions into the coordination store, where operator tools and the
// conflict check read them.
type Publisher struct {
	store coord.Store
	log   logx.Logger
}

func NewPublisher(store coord.Store, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{store: store, log: log.With(logx.String("comp", "publisher"))}
}

func (p *Publisher) PutSchedule(ctx context.Context, s Summary) error {
	return coord.PutJSON(ctx, p.store, ScheduleKey, s)
}

func (p *Publisher) PutSubmitted(ctx context.Context, s Summary) error {
	return coord.PutJSON(ctx, p.store, SubmittedKey, s)
}

// Schedules reads the published pending and submitted summaries. Missing
// keys read as empty summaries.
func (p *Publisher) Schedules(ctx context.Context) (pending, submitted Summary, err error) {
	if pending, err = p.summary(ctx, ScheduleKey); err != nil {
		return nil, nil, err
	}
	if submitted, err = p.summary(ctx, SubmittedKey); err != nil {
		return nil, nil, err
	}
	return pending, submitted, nil
}

func (p *Publisher) summary(ctx context.Context, key string) (Summary, error) {
	s := Summary{}
	if err := coord.GetJSON(ctx, p.store, key, &s); err != nil {
		if errors.Is(err, coord.ErrNotFound) {
			return Summary{}, nil
		}
		return nil, err
	}
	if s == nil {
		s = Summary{}
	}
	return s, nil
}

// Check returns a *ConflictError when rows overlap anything published as
// pending or submitted for the same observing mode.
func (p *Publisher) Check(ctx context.Context, rows []Row) error {
	pending, submitted, err := p.Schedules(ctx)
	if err != nil {
		return err
	}
	if cs := FindConflicts(Summarize(rows), pending, submitted); len(cs) > 0 {
		return &ConflictError{Conflicts: cs}
	}
	return nil
}

func (p *Publisher) PutDescriptions(ctx context.Context, d map[string]json.RawMessage) error {
	return coord.PutJSON(ctx, p.store, DescriptionKey, d)
}

// Descriptions returns the published descriptions by session id.
func (p *Publisher) Descriptions(ctx context.Context) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if err := coord.GetJSON(ctx, p.store, DescriptionKey, &out); err != nil {
		if errors.Is(err, coord.ErrNotFound) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	return out, nil
}

// Clear removes every published key the executor owns.
func (p *Publisher) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range []string{ScheduleKey, SubmittedKey, DescriptionKey} {
		if err := p.store.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.log.Debug("schedule.cleared")
	return nil
}
