package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/monitor"
)

func testNow() time.Time {
	return time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
}

func loadFleet(t *testing.T) *fleet.MemoryProvider {
	t.Helper()
	p, err := fleet.LoadDataset("../fleet/testdata/fleet.yaml")
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	return p
}

type recorded struct {
	actor  string
	action string
	md     map[string]string
}

type captureRecorder struct {
	mu     sync.Mutex
	events []recorded
}

func (c *captureRecorder) Record(_ context.Context, actor, action string, md map[string]string) activity.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, recorded{actor: actor, action: action, md: md})
	return activity.Event{Actor: actor, Action: action, Metadata: md}
}

func (c *captureRecorder) list() []recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recorded(nil), c.events...)
}

// domains returns the data domain of every recorded action, in order.
func (c *captureRecorder) domains() []string {
	var out []string
	for _, e := range c.list() {
		out = append(out, e.md[monitor.MetaDataAccess])
	}
	return out
}
