package debug

import (
	"fmt"
	"sync"
)

// Breakpoint represents a breakpoint in the debugger, keyed on a 32-bit
// virtual address (spec §4.2: the CPU yields to the scheduler on a
// debugger break).
type Breakpoint struct {
	Address  uint32
	Enabled  bool
	HitCount int
}

// WatchExpression represents a watch expression to monitor.
type WatchExpression struct {
	Expression string
	Value      interface{}
	LastValue  interface{}
}

// Debugger represents the interactive debugger: breakpoints, watches, and
// single-step state consulted by CPU.Clock's stop-reason check.
type Debugger struct {
	breakpoints   map[uint32]*Breakpoint
	breakpointsMu sync.RWMutex

	watches   []*WatchExpression
	watchesMu sync.RWMutex

	paused    bool
	stepping  bool
	stepCount int
	stateMu   sync.RWMutex

	callStack []CallFrame
	stackMu   sync.RWMutex
}

// CallFrame represents a function call frame pushed by PushCallFrame.
type CallFrame struct {
	Address  uint32
	ReturnTo uint32
}

// NewDebugger creates a new debugger instance.
func NewDebugger() *Debugger {
	return &Debugger{
		breakpoints: make(map[uint32]*Breakpoint),
		watches:     make([]*WatchExpression, 0),
		callStack:   make([]CallFrame, 0),
	}
}

// SetBreakpoint sets a breakpoint at the specified virtual address.
func (d *Debugger) SetBreakpoint(addr uint32) {
	d.breakpointsMu.Lock()
	defer d.breakpointsMu.Unlock()
	d.breakpoints[addr] = &Breakpoint{Address: addr, Enabled: true}
}

// RemoveBreakpoint removes a breakpoint.
func (d *Debugger) RemoveBreakpoint(addr uint32) bool {
	d.breakpointsMu.Lock()
	defer d.breakpointsMu.Unlock()
	if _, exists := d.breakpoints[addr]; exists {
		delete(d.breakpoints, addr)
		return true
	}
	return false
}

// GetBreakpoint returns a breakpoint by address.
func (d *Debugger) GetBreakpoint(addr uint32) (*Breakpoint, bool) {
	d.breakpointsMu.RLock()
	defer d.breakpointsMu.RUnlock()
	bp, exists := d.breakpoints[addr]
	return bp, exists
}

// GetAllBreakpoints returns all breakpoints.
func (d *Debugger) GetAllBreakpoints() map[uint32]*Breakpoint {
	d.breakpointsMu.RLock()
	defer d.breakpointsMu.RUnlock()
	result := make(map[uint32]*Breakpoint, len(d.breakpoints))
	for k, v := range d.breakpoints {
		result[k] = v
	}
	return result
}

// CheckBreakpoint checks if execution should break at the given address.
func (d *Debugger) CheckBreakpoint(addr uint32) bool {
	d.breakpointsMu.RLock()
	defer d.breakpointsMu.RUnlock()
	bp, exists := d.breakpoints[addr]
	if exists && bp.Enabled {
		bp.HitCount++
		return true
	}
	return false
}

// EnableBreakpoint enables a breakpoint.
func (d *Debugger) EnableBreakpoint(addr uint32) bool {
	d.breakpointsMu.Lock()
	defer d.breakpointsMu.Unlock()
	if bp, exists := d.breakpoints[addr]; exists {
		bp.Enabled = true
		return true
	}
	return false
}

// DisableBreakpoint disables a breakpoint.
func (d *Debugger) DisableBreakpoint(addr uint32) bool {
	d.breakpointsMu.Lock()
	defer d.breakpointsMu.Unlock()
	if bp, exists := d.breakpoints[addr]; exists {
		bp.Enabled = false
		return true
	}
	return false
}

// AddWatch adds a watch expression.
func (d *Debugger) AddWatch(expr string) {
	d.watchesMu.Lock()
	defer d.watchesMu.Unlock()
	d.watches = append(d.watches, &WatchExpression{Expression: expr})
}

// RemoveWatch removes a watch expression.
func (d *Debugger) RemoveWatch(index int) bool {
	d.watchesMu.Lock()
	defer d.watchesMu.Unlock()
	if index >= 0 && index < len(d.watches) {
		d.watches = append(d.watches[:index], d.watches[index+1:]...)
		return true
	}
	return false
}

// GetWatches returns all watch expressions.
func (d *Debugger) GetWatches() []*WatchExpression {
	d.watchesMu.RLock()
	defer d.watchesMu.RUnlock()
	result := make([]*WatchExpression, len(d.watches))
	copy(result, d.watches)
	return result
}

// Pause pauses execution.
func (d *Debugger) Pause() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.paused = true
	d.stepping = false
}

// Resume resumes execution.
func (d *Debugger) Resume() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.paused = false
	d.stepping = false
}

// Step sets single-step mode for count instructions.
func (d *Debugger) Step(count int) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.stepping = true
	d.stepCount = count
	d.paused = false
}

// IsPaused returns whether execution is paused.
func (d *Debugger) IsPaused() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.paused
}

// ShouldBreak checks if execution should break (breakpoint hit or stepping)
// at the given PC; this is the "debugger break" stop reason of spec §4.2.
func (d *Debugger) ShouldBreak(pc uint32) bool {
	d.stateMu.RLock()
	stepping := d.stepping
	stepCount := d.stepCount
	d.stateMu.RUnlock()

	if stepping && stepCount > 0 {
		d.stateMu.Lock()
		d.stepCount--
		if d.stepCount <= 0 {
			d.stepping = false
			d.paused = true
		}
		d.stateMu.Unlock()
		return true
	}

	return d.CheckBreakpoint(pc)
}

// PushCallFrame pushes a function call frame onto the stack; the CPU
// does not call it on jal/jalr.
func (d *Debugger) PushCallFrame(addr, returnTo uint32) {
	d.stackMu.Lock()
	defer d.stackMu.Unlock()
	d.callStack = append(d.callStack, CallFrame{Address: addr, ReturnTo: returnTo})
}

// PopCallFrame pops a function call frame from the stack.
func (d *Debugger) PopCallFrame() *CallFrame {
	d.stackMu.Lock()
	defer d.stackMu.Unlock()
	if len(d.callStack) == 0 {
		return nil
	}
	frame := d.callStack[len(d.callStack)-1]
	d.callStack = d.callStack[:len(d.callStack)-1]
	return &frame
}

// GetCallStack returns the current call stack.
func (d *Debugger) GetCallStack() []CallFrame {
	d.stackMu.RLock()
	defer d.stackMu.RUnlock()
	result := make([]CallFrame, len(d.callStack))
	copy(result, d.callStack)
	return result
}

// ClearBreakpoints clears all breakpoints.
func (d *Debugger) ClearBreakpoints() {
	d.breakpointsMu.Lock()
	defer d.breakpointsMu.Unlock()
	d.breakpoints = make(map[uint32]*Breakpoint)
}

// ClearWatches clears all watch expressions.
func (d *Debugger) ClearWatches() {
	d.watchesMu.Lock()
	defer d.watchesMu.Unlock()
	d.watches = make([]*WatchExpression, 0)
}

func (bp Breakpoint) String() string {
	return fmt.Sprintf("0x%08X (hits=%d enabled=%v)", bp.Address, bp.HitCount, bp.Enabled)
}
