// Package readiness implements the barrier-style readiness handshake:
// subscribing to each worker's readiness topic, aggregating an
// all-ready barrier, and publishing the global-ready signal once every
// tracked instance (including standalones) has reported in.
package readiness

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/everest-core/manager/internal/bus"
	"github.com/everest-core/manager/internal/logging"
)

// Status is one of the fixed status-FIFO tokens spec.md §6 names.
type Status string

const (
	StatusWaitingForStandalone Status = "WAITING_FOR_STANDALONE_MODULES"
	StatusAllStarted           Status = "ALL_MODULES_STARTED"
)

// StatusSink receives newline-terminated status tokens, implemented by
// the optional status-FIFO writer.
type StatusSink interface {
	Write(Status) error
}

// Coordinator aggregates per-instance readiness under a single mutex and
// publishes the fleet-ready signal once everything non-standalone (and
// every standalone) has reported ready.
type Coordinator struct {
	mu sync.Mutex

	bus                 bus.Bus
	log                 logging.Logger
	everestTopicPrefix  string
	sink                StatusSink

	ready      map[string]bool
	standalone map[string]bool
	tokens     map[string]bus.Token

	fleetReady bool
}

// New creates a coordinator publishing on bus with the given everest
// topic prefix (e.g. "everest/"). sink may be nil to skip status-FIFO
// updates.
func New(b bus.Bus, log logging.Logger, everestTopicPrefix string, sink StatusSink) *Coordinator {
	if log == nil {
		log = logging.Nop{}
	}
	return &Coordinator{
		bus:                b,
		log:                log,
		everestTopicPrefix: everestTopicPrefix,
		sink:               sink,
		ready:              make(map[string]bool),
		standalone:         make(map[string]bool),
		tokens:             make(map[string]bus.Token),
	}
}

// Register subscribes to instanceID's readiness topic before spawn, per
// spec.md §4.8. standalone instances are tracked for the barrier but are
// never spawned by the supervisor.
func (c *Coordinator) Register(instanceID string, standalone bool) error {
	c.mu.Lock()
	c.ready[instanceID] = false
	c.standalone[instanceID] = standalone
	c.mu.Unlock()

	topic := c.everestTopicPrefix + instanceID + "/ready"
	token, err := c.bus.Subscribe(topic, func(payload []byte) {
		c.handleReady(instanceID, payload)
	})
	if err != nil {
		return fmt.Errorf("readiness: subscribe %s: %w", topic, err)
	}
	c.mu.Lock()
	c.tokens[instanceID] = token
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleReady(instanceID string, payload []byte) {
	var ready bool
	if err := json.Unmarshal(payload, &ready); err != nil {
		// Errors from child-readiness handlers are logged and ignored
		// at the barrier — a malformed payload does not unset
		// readiness of other instances, per spec.md §7.
		c.log.Error("malformed readiness payload", "instance", instanceID, "error", err.Error())
		return
	}
	if !ready {
		return
	}
	c.markReady(instanceID)
}

// markReady records instanceID as ready and evaluates the barrier.
// Setting an already-true flag is idempotent, per spec.md §4.8; no
// instance's ready flag ever transitions from true to false (spec.md
// §8's monotonicity invariant).
func (c *Coordinator) markReady(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready[instanceID] {
		return
	}
	c.ready[instanceID] = true
	c.evaluateBarrierLocked()
}

// Settle evaluates the barrier once without a readiness message having
// arrived, so the vacuous case — zero instances registered, or every
// registered instance already ready — fires immediately instead of
// waiting on a delivery that will never come. Callers register every
// instance first (per spec.md §4.8, "before spawn"), then call Settle
// once: spec.md §8 scenario 1 requires the empty-deployment case to
// emit ALL_MODULES_STARTED right away, with no workers ever spawned to
// publish a readiness message.
func (c *Coordinator) Settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluateBarrierLocked()
}

// evaluateBarrierLocked re-derives the barrier state from c.ready and
// acts on it (publish fleet-ready, or report waiting-for-standalone).
// Callers must hold c.mu.
func (c *Coordinator) evaluateBarrierLocked() {
	nonReady := 0
	nonReadyAllStandalone := true
	for id, ready := range c.ready {
		if ready {
			continue
		}
		nonReady++
		if !c.standalone[id] {
			nonReadyAllStandalone = false
		}
	}

	switch {
	case nonReady == 0:
		c.publishFleetReady()
	case nonReadyAllStandalone:
		c.writeStatus(StatusWaitingForStandalone)
	}
}

func (c *Coordinator) publishFleetReady() {
	if c.fleetReady {
		return
	}
	c.fleetReady = true
	c.writeStatus(StatusAllStarted)
	payload, _ := json.Marshal(true)
	topic := c.everestTopicPrefix + "ready"
	if err := c.bus.Publish(topic, payload); err != nil {
		c.log.Error("publish fleet-ready failed", "topic", topic, "error", err.Error())
	}
}

func (c *Coordinator) writeStatus(s Status) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Write(s); err != nil {
		c.log.Error("status sink write failed", "status", string(s), "error", err.Error())
	}
}

// AllReady reports whether the fleet-ready barrier has already fired.
func (c *Coordinator) AllReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fleetReady
}

// Teardown unregisters every handler and only then clears the ready-info
// map, closing the FIXME noted in spec.md §9. The tokens are copied under
// the coordinator's mutex, the Unsubscribe calls run with the mutex
// released, and the maps are cleared under the mutex again, so a ready
// handler firing mid-teardown never observes a half-cleared map.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	tokens := make(map[string]bus.Token, len(c.tokens))
	for id, tok := range c.tokens {
		tokens[id] = tok
	}
	c.mu.Unlock()

	for id, tok := range tokens {
		if err := c.bus.Unsubscribe(tok); err != nil {
			c.log.Warn("unsubscribe failed", "instance", id, "error", err.Error())
		}
	}

	c.mu.Lock()
	c.ready = make(map[string]bool)
	c.standalone = make(map[string]bool)
	c.tokens = make(map[string]bus.Token)
	c.mu.Unlock()
}
