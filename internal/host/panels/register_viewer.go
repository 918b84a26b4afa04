package panels

import (
	"fmt"
	"os"
	"time"

	"psxemu/internal/emulator"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// RegisterViewer builds a panel showing the R3000A's GPR file, HI/LO,
// and COP0's SR/Cause/EPC in real time, adapted from teacher's 8-bit
// R0-R7/PBR/DBR/Flags layout (internal/ui/panels/register_viewer.go)
// onto the 32-register MIPS file.
func RegisterViewer(psx *emulator.Psx, window fyne.Window) (*fyne.Container, func()) {
	registerText := widget.NewMultiLineEntry()
	registerText.Wrapping = fyne.TextWrapOff
	registerText.Disable()
	registerScroll := container.NewScroll(registerText)
	registerScroll.SetMinSize(fyne.NewSize(360, 420))

	gprNames := [32]string{
		"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
		"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
		"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
		"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
	}

	formatState := func() string {
		if psx == nil || psx.CPU == nil {
			return "CPU not available\n"
		}
		cpu := psx.CPU

		var text string
		text += "=== CPU Registers ===\n\n"
		for i := 0; i < 32; i++ {
			text += fmt.Sprintf("  $%-2d %-4s = 0x%08X\n", i, gprNames[i], cpu.GPR[i])
		}
		text += fmt.Sprintf("\n  PC  = 0x%08X\n", cpu.PC)
		text += fmt.Sprintf("  HI  = 0x%08X\n", cpu.HI)
		text += fmt.Sprintf("  LO  = 0x%08X\n", cpu.LO)

		text += "\n=== COP0 ===\n"
		text += fmt.Sprintf("  SR    = 0x%08X\n", cpu.COP0.SR)
		text += fmt.Sprintf("  Cause = 0x%08X\n", cpu.COP0.Cause)
		text += fmt.Sprintf("  EPC   = 0x%08X\n", cpu.COP0.EPC)
		text += fmt.Sprintf("  IsC   = %v\n", cpu.COP0.IsolateCache())
		text += fmt.Sprintf("  IRQ pending = %v\n", cpu.COP0.InterruptPending())

		text += fmt.Sprintf("\nCycles: %d\n", cpu.Cycles)
		return text
	}

	updateFunc := func() {
		registerText.SetText(formatState())
	}

	copyBtn := widget.NewButton("Copy All", func() {
		if registerText.Text != "" && window != nil {
			window.Clipboard().SetContent(registerText.Text)
		}
	})

	saveBtn := widget.NewButton("Save State", func() {
		timestamp := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("register_state_%s.txt", timestamp)
		text := fmt.Sprintf("psxemu register dump\ngenerated: %s\n\n%s",
			time.Now().Format("2006-01-02 15:04:05"), formatState())
		if err := os.WriteFile(filename, []byte(text), 0o644); err != nil {
			fmt.Printf("error saving register state: %v\n", err)
		} else {
			fmt.Printf("register state saved to: %s\n", filename)
		}
	})

	updateFunc()

	main := container.NewVBox(
		widget.NewLabel("CPU Registers"),
		container.NewHBox(copyBtn, saveBtn),
		registerScroll,
	)
	return main, updateFunc
}
