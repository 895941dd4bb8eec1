package pipeline

import (
	"time"

	"github.com/sells-group/company-research/internal/model"
)

// Event is one phase transition for one entity, published to the optional
// observer channel.
type Event struct {
	Entity string          `json:"entity"`
	Status model.RunStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
	At     time.Time       `json:"at"`
}

// emit publishes an event without blocking. A slow observer loses events;
// research never waits on it.
func (p *Pipeline) emit(entity string, status model.RunStatus, detail string) {
	if p.deps.Events == nil {
		return
	}
	select {
	case p.deps.Events <- Event{Entity: entity, Status: status, Detail: detail, At: time.Now()}:
	default:
	}
}
