package panels

import (
	"fmt"

	"psxemu/internal/emulator"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// MemoryViewer builds a hex-dump panel over the 32-bit bus address
// space, adapted from teacher's bank:offset layout (internal/ui/panels/
// memory_viewer.go) onto the PSX's flat addressing.
func MemoryViewer(psx *emulator.Psx) (*fyne.Container, func()) {
	addrEntry := widget.NewEntry()
	addrEntry.SetText("0xBFC00000")
	addrLabel := widget.NewLabel("Address:")

	memoryText := widget.NewLabel("")
	memoryText.Wrapping = fyne.TextWrapOff
	memoryScroll := container.NewScroll(memoryText)
	memoryScroll.SetMinSize(fyne.NewSize(480, 420))

	updateFunc := func() {
		if psx == nil {
			return
		}

		var addr uint32
		fmt.Sscanf(addrEntry.Text, "0x%X", &addr)

		var dumpText string
		dumpText += fmt.Sprintf("Memory Dump - 0x%08X\n\n", addr)

		const lines = 16
		for line := 0; line < lines; line++ {
			lineAddr := addr + uint32(line*16)
			dumpText += fmt.Sprintf("%08X  ", lineAddr)

			var ascii string
			for i := uint32(0); i < 16; i++ {
				value, err := psx.BusReadU8(lineAddr + i)
				if err != nil {
					dumpText += "?? "
					ascii += "."
					continue
				}
				dumpText += fmt.Sprintf("%02X ", value)
				if value >= 32 && value < 127 {
					ascii += string(rune(value))
				} else {
					ascii += "."
				}
			}
			dumpText += " |" + ascii + "|\n"
		}

		memoryText.SetText(dumpText)
	}

	addrEntry.OnChanged = func(string) { updateFunc() }
	updateFunc()

	controls := container.NewHBox(addrLabel, addrEntry)
	main := container.NewVBox(
		widget.NewLabel("Memory Viewer"),
		controls,
		memoryScroll,
	)
	return main, updateFunc
}
