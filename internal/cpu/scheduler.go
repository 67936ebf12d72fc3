package cpu

// Bus is the dot-accurate system bus the Scheduler drives the CPU against.
// Unlike Memory, its Read/Write calls are plain data transfers; dot-by-dot
// advancement of every other subsystem (PPU, timer, DMA, latch decay) and
// OAM-bug visibility are driven by the Scheduler's tap, not by the bus
// itself counting cycles.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)
	// TickDot advances every dot-driven subsystem by one dot (1/4 of an
	// M-cycle). The Scheduler calls this four times per M-cycle: for an
	// ordinary Read/Write the transfer lands after the fourth dot, while
	// for InternalOamBug the OAM-bug notification lands after the third.
	TickDot()
	// NotifyOAMBusTouch reports that addr appeared on the CPU address bus
	// during an M-cycle with no ordinary Read/Write, for OAM-bug purposes.
	NotifyOAMBusTouch(addr uint16, isWrite bool)
	// InterruptPending, InterruptTriggered and AcknowledgeInterrupt give the
	// CPU free (non-bus-cycle) access to IE/IF state, matching how HALT
	// wake-up and interrupt dispatch priority are resolved on hardware
	// ahead of any bus transfer.
	InterruptPending() bool
	InterruptTriggered() (bit uint8, ok bool)
	AcknowledgeInterrupt(bit uint8)
}

// Scheduler drives a CPU one M-cycle at a time against a Bus, so that every
// dot-driven subsystem observes bus activity at the same granularity real
// hardware does. It does this by wrapping CPU.Memory in a tap that ticks
// the bus four dots for every Read, Write, Internal, or InternalOamBug
// M-cycle the instruction decoder performs. An ordinary Read/Write's
// transfer lands on the cycle's fourth dot; InternalOamBug instead fires
// its OAM-bug notification after the third dot, before the fourth, matching
// the one-dot-earlier sampling hardware does for OAM-scan-index visibility.
type Scheduler struct {
	cpu *CPU
	tap *busTap
}

// NewScheduler creates a Scheduler. The CPU is constructed internally so
// its Memory field is always the dot-ticking tap, never the raw Bus.
func NewScheduler(bus Bus) *Scheduler {
	tap := &busTap{bus: bus}
	c := &CPU{
		Registers:  NewRegisters(),
		Memory:     tap,
		Interrupts: bus,
	}
	return &Scheduler{cpu: c, tap: tap}
}

// CPU exposes the underlying CPU for register inspection and snapshotting.
func (s *Scheduler) CPU() *CPU { return s.cpu }

// Save returns the underlying CPU's snapshot.
func (s *Scheduler) Save() Snapshot { return s.cpu.Save() }

// Restore replaces the underlying CPU's register and control-flag state.
func (s *Scheduler) Restore(snap Snapshot) { s.cpu.Restore(snap) }

// Step runs exactly one CPU instruction (or one halted no-op M-cycle, or
// one interrupt dispatch), ticking the bus dot-by-dot as it goes, and
// returns the number of T-cycles consumed.
func (s *Scheduler) Step() uint8 {
	return s.cpu.Step()
}

// busTap is the CPU-facing Memory implementation that turns every M-cycle
// the instruction decoder performs into four bus dots.
type busTap struct {
	bus Bus
}

func (t *busTap) Read(addr uint16) uint8 {
	t.tickMCycle()
	return t.bus.Read(addr)
}

func (t *busTap) Write(addr uint16, value uint8) {
	t.tickMCycle()
	t.bus.Write(addr, value)
}

func (t *busTap) Internal() {
	t.tickMCycle()
}

// InternalOamBug ticks dots 0-2 of the M-cycle, fires the OAM-bug
// notification at dot 2 (sampling the PPU's OAM-scan index exactly where
// hardware does), then ticks the remaining dot 3. This differs from an
// ordinary Read/Write, whose transfer lands only after all four dots have
// ticked.
func (t *busTap) InternalOamBug(addr uint16) {
	for i := 0; i < 3; i++ {
		t.bus.TickDot()
	}
	t.bus.NotifyOAMBusTouch(addr, false)
	t.bus.TickDot()
}

// tickMCycle advances the bus four dots, the width of one M-cycle.
func (t *busTap) tickMCycle() {
	for i := 0; i < 4; i++ {
		t.bus.TickDot()
	}
}
