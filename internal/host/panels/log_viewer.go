// Package panels implements Fyne debug windows shown alongside the
// SDL2 presentation shell, adapted from teacher's internal/ui/panels
// (a separate Fyne debugger docked next to the SDL2 emulator view) onto
// the PSX device set.
package panels

import (
	"fmt"
	"os"
	"time"

	"psxemu/internal/debug"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// LogViewer builds a Fyne panel showing logger entries with per-device
// filter checkboxes and a level dropdown. Returns the container plus an
// update function the caller should invoke on a timer.
func LogViewer(logger *debug.Logger, window fyne.Window) (*fyne.Container, func()) {
	logText := widget.NewMultiLineEntry()
	logText.Wrapping = fyne.TextWrapOff
	logText.Disable()
	logScroll := container.NewScroll(logText)
	logScroll.SetMinSize(fyne.NewSize(700, 420))

	checks := map[debug.Component]*widget.Check{
		debug.ComponentCPU:        widget.NewCheck("CPU", nil),
		debug.ComponentGTE:        widget.NewCheck("GTE", nil),
		debug.ComponentGPU:        widget.NewCheck("GPU", nil),
		debug.ComponentSPU:        widget.NewCheck("SPU", nil),
		debug.ComponentCDROM:      widget.NewCheck("CDROM", nil),
		debug.ComponentMDEC:       widget.NewCheck("MDEC", nil),
		debug.ComponentDMA:        widget.NewCheck("DMA", nil),
		debug.ComponentIRQ:        widget.NewCheck("IRQ", nil),
		debug.ComponentTimer:      widget.NewCheck("Timer", nil),
		debug.ComponentController: widget.NewCheck("Controller", nil),
		debug.ComponentMemory:     widget.NewCheck("Memory", nil),
		debug.ComponentUI:         widget.NewCheck("UI", nil),
		debug.ComponentSystem:     widget.NewCheck("System", nil),
	}
	componentOrder := []debug.Component{
		debug.ComponentCPU, debug.ComponentGTE, debug.ComponentGPU, debug.ComponentSPU,
		debug.ComponentCDROM, debug.ComponentMDEC, debug.ComponentDMA, debug.ComponentIRQ,
		debug.ComponentTimer, debug.ComponentController, debug.ComponentMemory,
		debug.ComponentUI, debug.ComponentSystem,
	}
	for _, c := range componentOrder {
		checks[c].SetChecked(true)
	}

	levelSelect := widget.NewSelect([]string{"None", "Error", "Warning", "Info", "Debug", "Trace"}, nil)
	levelSelect.SetSelected("Info")

	autoScrollCheck := widget.NewCheck("Auto-scroll", nil)
	autoScrollCheck.SetChecked(true)

	copyBtn := widget.NewButton("Copy All", func() {
		if logText.Text != "" && window != nil {
			window.Clipboard().SetContent(logText.Text)
		}
	})

	saveBtn := widget.NewButton("Save Logs", func() {
		timestamp := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("psxemu_logs_%s.txt", timestamp)
		content := logText.Text
		if content == "" {
			content = "No log entries"
		}
		content = fmt.Sprintf("psxemu logs\ngenerated: %s\n\n%s", time.Now().Format("2006-01-02 15:04:05"), content)
		if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
			fmt.Printf("error saving logs: %v\n", err)
		} else {
			fmt.Printf("logs saved to: %s\n", filename)
		}
	})

	checkRow := []fyne.CanvasObject{widget.NewLabel("Components:")}
	for _, c := range componentOrder {
		checkRow = append(checkRow, checks[c])
	}

	filterContainer := container.NewVBox(
		container.NewHBox(checkRow...),
		container.NewHBox(
			widget.NewLabel("Level:"), levelSelect,
			autoScrollCheck, widget.NewSeparator(), copyBtn, saveBtn,
		),
	)

	updateLogs := func() {
		if logger == nil {
			logText.SetText("logger not available")
			return
		}

		var levelFilter debug.LogLevel
		switch levelSelect.Selected {
		case "None":
			levelFilter = debug.LogLevelNone
		case "Error":
			levelFilter = debug.LogLevelError
		case "Warning":
			levelFilter = debug.LogLevelWarning
		case "Debug":
			levelFilter = debug.LogLevelDebug
		case "Trace":
			levelFilter = debug.LogLevelTrace
		default:
			levelFilter = debug.LogLevelInfo
		}

		allEntries := logger.GetEntries()
		filtered := make([]debug.LogEntry, 0, len(allEntries))
		for _, entry := range allEntries {
			if check, ok := checks[entry.Component]; ok && !check.Checked {
				continue
			}
			if entry.Level < levelFilter {
				continue
			}
			filtered = append(filtered, entry)
		}

		var text string
		if len(filtered) == 0 {
			text = "no log entries (filters may be too restrictive)"
		} else {
			startIdx := 0
			const maxEntries = 1000
			if autoScrollCheck.Checked && len(filtered) > maxEntries {
				startIdx = len(filtered) - maxEntries
			}
			for i := startIdx; i < len(filtered); i++ {
				entry := filtered[i]
				text += fmt.Sprintf("[%s] [%s] %s: %s\n",
					entry.Timestamp.Format("15:04:05.000"), entry.Component, entry.Level, entry.Message)
			}
		}
		logText.SetText(text)
		if autoScrollCheck.Checked {
			logScroll.ScrollToBottom()
		}
	}

	mainContainer := container.NewBorder(filterContainer, nil, nil, nil, logScroll)
	return mainContainer, updateLogs
}
