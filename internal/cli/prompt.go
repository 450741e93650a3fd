// Package cli holds small helpers shared by the terminal frontend:
// interactive prompts, display formatting, and argument parsing.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptLine prompts the user for a single line of input. Returns the
// fallback if the user enters nothing or the read fails.
func PromptLine(label, fallback string) string {
	if fallback != "" {
		fmt.Printf("%s [%s]: ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read input, using default")
		return fallback
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return fallback
	}

	return input
}
