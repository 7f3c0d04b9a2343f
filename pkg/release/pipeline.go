package release

import (
	"context"
	"sync"
)

// Gate decides whether a candidate may advance. Implementations must always
// return a response; a gate that cannot determine its status reports OK false
// with an explanatory message. Gates run concurrently and must treat the
// request as read-only.
type Gate interface {
	ID() string
	Evaluate(ctx context.Context, ev Event, req *Request) GateResponse
}

type Pipeline struct {
	gates []Gate
}

func NewPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

func (p *Pipeline) Gates() []Gate {
	return p.gates
}

// Evaluate runs every gate concurrently, waits for all of them, records the
// responses on req keyed by gate id and reports whether all were ok.
func (p *Pipeline) Evaluate(ctx context.Context, ev Event, req *Request) bool {
	responses := make([]GateResponse, len(p.gates))

	var wg sync.WaitGroup
	for i, gate := range p.gates {
		wg.Add(1)
		go func(i int, gate Gate) {
			defer wg.Done()
			resp := gate.Evaluate(ctx, ev, req)
			if resp.ID == "" {
				resp.ID = gate.ID()
			}
			responses[i] = resp
		}(i, gate)
	}
	wg.Wait()

	if req.Results == nil {
		req.Results = make(map[string]GateResponse, len(responses))
	}

	allOK := true
	for _, resp := range responses {
		req.Results[resp.ID] = resp
		if !resp.OK {
			allOK = false
		}
	}
	return allOK
}
