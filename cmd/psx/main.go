package main

import (
	"flag"
	"fmt"
	"os"

	"psxemu/internal/debug"
	"psxemu/internal/emulator"
	"psxemu/internal/host"
)

func main() {
	biosPath := flag.String("bios", "", "Path to a BIOS ROM image")
	diskPath := flag.String("disk", "", "Path to a CUE sheet (optional)")
	exePath := flag.String("exe", "", "Path to a PSX-EXE to side-load after boot (optional)")
	scale := flag.Int("scale", 1, "Display scale (1-4)")
	unlimited := flag.Bool("unlimited", false, "Run at unlimited speed (disables vsync pacing)")
	enableLogging := flag.Bool("log", false, "Enable logging (disabled by default)")
	card0Path := flag.String("memcard0", "memcard0.mcd", "Path to controller slot 0's memory card image")
	card1Path := flag.String("memcard1", "memcard1.mcd", "Path to controller slot 1's memory card image")
	flag.Parse()

	if *biosPath == "" {
		fmt.Println("Usage: psx -bios <path-to-bios> [-disk <path.cue>] [-exe <path.exe>]")
		fmt.Println("  -bios <path>     Path to a BIOS ROM image (required)")
		fmt.Println("  -disk <path>     Path to a CUE sheet")
		fmt.Println("  -exe <path>      Path to a PSX-EXE to side-load after boot")
		fmt.Println("  -scale <1-4>     Display scale (default: 1)")
		fmt.Println("  -unlimited       Run at unlimited speed")
		fmt.Println("  -log             Enable logging (disabled by default)")
		fmt.Println("  -memcard0/1      Memory card image paths (default: memcard0.mcd/memcard1.mcd)")
		os.Exit(1)
	}

	var logger *debug.Logger
	if *enableLogging {
		logger = debug.NewLogger(10000)
		logger.SetComponentEnabled(debug.ComponentCPU, true)
		logger.SetComponentEnabled(debug.ComponentGTE, true)
		logger.SetComponentEnabled(debug.ComponentGPU, true)
		logger.SetComponentEnabled(debug.ComponentSPU, true)
		logger.SetComponentEnabled(debug.ComponentCDROM, true)
		logger.SetComponentEnabled(debug.ComponentMDEC, true)
		logger.SetComponentEnabled(debug.ComponentDMA, true)
		logger.SetComponentEnabled(debug.ComponentIRQ, true)
		logger.SetComponentEnabled(debug.ComponentTimer, true)
		logger.SetComponentEnabled(debug.ComponentController, true)
		logger.SetComponentEnabled(debug.ComponentMemory, true)
		logger.SetComponentEnabled(debug.ComponentUI, true)
		logger.SetComponentEnabled(debug.ComponentSystem, true)
		logger.SetMinLevel(debug.LogLevelDebug)
	} else {
		logger = debug.NewLogger(1000)
	}

	psx, err := emulator.New(*biosPath, *diskPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating machine: %v\n", err)
		os.Exit(1)
	}

	for slot, path := range [2]string{*card0Path, *card1Path} {
		if data, err := os.ReadFile(path); err == nil {
			psx.LoadMemoryCard(slot, data)
		}
	}
	defer saveMemoryCards(psx, [2]string{*card0Path, *card1Path})

	if *exePath != "" {
		raw, err := os.ReadFile(*exePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading EXE: %v\n", err)
			os.Exit(1)
		}
		if err := psx.LoadEXE(raw); err != nil {
			fmt.Fprintf(os.Stderr, "error loading EXE: %v\n", err)
			os.Exit(1)
		}
	}

	if *scale < 1 || *scale > 4 {
		fmt.Fprintf(os.Stderr, "error: scale must be between 1 and 4\n")
		os.Exit(1)
	}
	fmt.Println("psxemu")
	fmt.Println("======")
	if *diskPath != "" {
		fmt.Printf("Disk: %s\n", *diskPath)
	}
	fmt.Println("Controls: Arrows/Start(Enter)/Select(Shift)/X,S,Z,A/Q,W shoulders/1-2 triggers/3-4 L3-R3")
	fmt.Println("  Space  - Pause/Resume")
	fmt.Println("  Ctrl+R - Reset")
	fmt.Println("  Alt+F  - Toggle fullscreen")
	fmt.Println("  ESC    - Quit")

	shell, err := host.New(psx, *scale, *unlimited)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating window: %v\n", err)
		os.Exit(1)
	}

	if err := shell.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "shell error: %v\n", err)
		os.Exit(1)
	}
}

func saveMemoryCards(psx *emulator.Psx, paths [2]string) {
	for slot, path := range paths {
		data := psx.TakeMemoryCard(slot)
		if data == nil {
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save %s: %v\n", path, err)
		}
	}
}
