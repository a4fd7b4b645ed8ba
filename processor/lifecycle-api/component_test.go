package lifecycleapi

import (
	"testing"

	"github.com/c360studio/semstreams/component"
)

func TestOutputPortTargetsTriggerStream(t *testing.T) {
	c := &Component{config: DefaultConfig()}

	ports := c.OutputPorts()
	if len(ports) != 1 {
		t.Fatalf("len(ports) = %d, want 1", len(ports))
	}

	port := ports[0]
	if port.Direction != component.DirectionOutput {
		t.Errorf("direction = %q, want %q", port.Direction, component.DirectionOutput)
	}

	js, ok := port.Config.(component.JetStreamPort)
	if !ok {
		t.Fatalf("port config is %T, want component.JetStreamPort", port.Config)
	}
	if js.StreamName != "ARCHON" {
		t.Errorf("stream = %q, want %q", js.StreamName, "ARCHON")
	}
	if len(js.Subjects) != 1 || js.Subjects[0] != "archon.reconcile.trigger" {
		t.Errorf("subjects = %v, want [archon.reconcile.trigger]", js.Subjects)
	}
}
