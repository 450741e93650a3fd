package main

import (
	"fmt"

	"github.com/mquinn/poststudio/internal/cli"
	"github.com/mquinn/poststudio/internal/generation"
	"github.com/mquinn/poststudio/internal/studio"
)

// printBoard renders one line per slot with its current publish affordance.
func printBoard(session *studio.Session) {
	progress := session.Progress()

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("📋 Slot Board")
	fmt.Println("============================================")
	fmt.Printf("Job: %s  Status: %s\n", progress.JobID, progress.Status)
	fmt.Println("--------------------------------------------")
	for _, slot := range session.Slots() {
		fmt.Println(slotLine(session, slot))
	}
	fmt.Println("--------------------------------------------")
}

// slotLine formats one board row: index, type indicator, text preview,
// media markers, and the action the slot offers.
func slotLine(session *studio.Session, slot generation.Slot) string {
	indicator := "📄"
	switch slot.ContentType {
	case generation.TypeThread:
		indicator = "🧵"
	case generation.TypeVideo:
		indicator = "🎬"
	}

	media := ""
	if slot.ImageURL != "" {
		media += " 📷"
	}
	if slot.VideoURL != "" {
		media += " 🎞"
	}
	if len(slot.ThreadArray) > 0 {
		media += fmt.Sprintf(" +%d replies", len(slot.ThreadArray))
	}
	if record, known := session.ScheduledHint(slot.Index); known && record != nil {
		media += " 📅"
	}

	affordance, _ := session.Affordance(slot.Index)
	return fmt.Sprintf("   %2d. %s %s%s  → %s", slot.Index, indicator, cli.Preview(slot.Text, 48), media, affordance)
}

// showSlot prints the full content of one slot.
func showSlot(session *studio.Session, index int) {
	slot, ok := session.Slot(index)
	if !ok {
		fmt.Printf("❌ Slot %d does not exist\n", index)
		return
	}

	fmt.Println("--------------------------------------------")
	fmt.Printf("Slot %d (%s", slot.Index, slot.ContentType)
	if slot.ContentType != slot.PlannedType {
		fmt.Printf(", planned as %s", slot.PlannedType)
	}
	fmt.Println(")")
	fmt.Println(slot.Text)
	for i, reply := range slot.ThreadArray {
		fmt.Printf("   ↳ %d. %s\n", i+1, reply)
	}
	if slot.ImageURL != "" {
		fmt.Printf("📷 %s\n", slot.ImageURL)
	}
	if slot.VideoURL != "" {
		fmt.Printf("🎞 %s\n", slot.VideoURL)
	}
	affordance, _ := session.Affordance(index)
	fmt.Printf("→ %s\n", affordance)
	fmt.Println("--------------------------------------------")
}
