package release

import (
	"context"
	"fmt"
)

// Publisher creates the tag and release for a candidate that passed every gate.
type Publisher interface {
	CreateTag(ctx context.Context, repo Repo, tag, sha, message string) error
	CreateRelease(ctx context.Context, repo Repo, tag, body string, prerelease bool) error
}

type Processor struct {
	pipeline     *Pipeline
	publisher    Publisher
	onTransition func(ctx context.Context, req *Request, from, to State)
	onPublished  func(ctx context.Context, req *Request)
}

func NewProcessor(pipeline *Pipeline, publisher Publisher) *Processor {
	return &Processor{
		pipeline:  pipeline,
		publisher: publisher,
	}
}

// SetTransitionCallback registers fn to run after every state change.
func (p *Processor) SetTransitionCallback(fn func(ctx context.Context, req *Request, from, to State)) {
	p.onTransition = fn
}

func (p *Processor) SetPublishedCallback(fn func(ctx context.Context, req *Request)) {
	p.onPublished = fn
}

// Process evaluates the gates for req and publishes it when all of them pass.
// A failing gate leaves the request pending until a later event re-enters
// Process with the same request. A completed request is never published twice.
func (p *Processor) Process(ctx context.Context, ev Event, req *Request) (State, error) {
	if req.Completed {
		return req.State, nil
	}

	req.Attempts++
	p.transition(ctx, req, StateEvaluating)

	if !p.pipeline.Evaluate(ctx, ev, req) {
		p.transition(ctx, req, StatePending)
		return StatePending, nil
	}

	p.transition(ctx, req, StateReady)

	if err := p.publish(ctx, req); err != nil {
		p.transition(ctx, req, StatePending)
		return StatePending, fmt.Errorf("publishing %s: %w", req.Next.Next, err)
	}

	req.Completed = true
	p.transition(ctx, req, StatePublished)

	if p.onPublished != nil {
		p.onPublished(ctx, req)
	}

	return StatePublished, nil
}

func (p *Processor) publish(ctx context.Context, req *Request) error {
	channel, err := req.Channel()
	if err != nil {
		return err
	}

	if err := p.publisher.CreateTag(ctx, req.Repo, req.Next.Next, req.Next.HeadCommit, req.Next.Next); err != nil {
		return fmt.Errorf("creating tag: %w", err)
	}

	if !channel.CreateRelease {
		return nil
	}

	body := fmt.Sprintf("Changes since %s: %s", baselineOrStart(req), req.CompareURL())
	if err := p.publisher.CreateRelease(ctx, req.Repo, req.Next.Next, body, channel.MarkAsPrerelease); err != nil {
		return fmt.Errorf("creating release: %w", err)
	}
	return nil
}

func baselineOrStart(req *Request) string {
	if req.Next.Baseline == "" {
		return "the beginning"
	}
	return req.Next.Baseline
}

func (p *Processor) transition(ctx context.Context, req *Request, to State) {
	from := req.State
	req.State = to
	if p.onTransition != nil {
		p.onTransition(ctx, req, from, to)
	}
}

// Task is a detached Process run. Done is closed once the outcome is known.
type Task struct {
	done  chan struct{}
	state State
	err   error
}

// Dispatch runs Process in its own goroutine and returns immediately. The
// request must not be touched by the caller until the task is done.
func (p *Processor) Dispatch(ctx context.Context, ev Event, req *Request) *Task {
	task := &Task{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		task.state, task.err = p.Process(ctx, ev, req)
	}()
	return task
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Wait() (State, error) {
	<-t.done
	return t.state, t.err
}
