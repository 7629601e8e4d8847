package sim

import "fmt"

const (
	// StatusInitialized is returned by a successful Host.Initialize.
	StatusInitialized = "Satellite Initialized"

	ActionReset = "reset_to_initial_config"
)

// Host adapts a Session to plain string, bool and map results for an
// embedding layer that cannot consume Go errors.
type Host struct {
	s *Session
}

func NewHost(s *Session) *Host { return &Host{s: s} }

func (h *Host) Session() *Session { return h.s }

// Initialize returns StatusInitialized, or a message describing the
// rejected overrides.
func (h *Host) Initialize(overrides map[string]any) string {
	if err := h.s.Initialize(overrides); err != nil {
		return "initialization failed: " + err.Error()
	}
	return StatusInitialized
}

// Step returns the rounded report, or a map with a single "error" entry.
func (h *Host) Step(dt float64) map[string]any {
	rep, err := h.s.Step(dt)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return rep.Rounded()
}

func (h *Host) SetParameter(name string, value any) bool {
	return h.s.SetParameter(name, value) == nil
}

// HandleAction runs a named action. Unknown actions change nothing.
func (h *Host) HandleAction(id string) string {
	switch id {
	case ActionReset:
		if err := h.s.Reset(); err != nil {
			return "reset failed: " + err.Error()
		}
		return StatusInitialized
	}
	return fmt.Sprintf("unknown action: %s", id)
}
