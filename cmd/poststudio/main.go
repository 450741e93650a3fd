package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mquinn/poststudio/internal/cli"
	"github.com/mquinn/poststudio/internal/config"
	"github.com/mquinn/poststudio/internal/logging"
	"github.com/mquinn/poststudio/internal/studio"
	"github.com/mquinn/poststudio/internal/studioapi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	targetFlag       string
	countFlag        int
	postsFlag        int
	threadsFlag      int
	videosFlag       int
	topicFlag        string
	instructionsFlag string
	noBrowserFlag    bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "poststudio",
	Short: "AI-generated post batches for Twitter, from your terminal",
	Long: `Post Studio drives a content generation backend from the terminal: it
starts a batch generation job for a target account, renders the slot board
as results stream in, and publishes finished slots to Twitter.

While the job runs the tool polls its status, fills slots in as the
generator reaches them, and leaves untouched slots on their placeholder.
When Twitter rejects stale credentials during a publish, the tool opens
the browser to reconnect and hands the retry back to you.

Examples:
  poststudio --target acct-42 --count 5 --posts 3 --threads 1 --videos 1
  poststudio -t acct-42 -n 3 --topic "Launch week recap"
  poststudio -t acct-42 --no-browser  # print auth URLs instead of opening a browser
  poststudio                          # Interactive mode - prompts for the target account`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target account to generate content for")
	rootCmd.Flags().IntVarP(&countFlag, "count", "n", 5, "Number of content slots to generate")
	rootCmd.Flags().IntVar(&postsFlag, "posts", 0, "Single posts in the mix (0 = fill remainder)")
	rootCmd.Flags().IntVar(&threadsFlag, "threads", 0, "Threads in the mix")
	rootCmd.Flags().IntVar(&videosFlag, "videos", 0, "Videos in the mix")
	rootCmd.Flags().StringVar(&topicFlag, "topic", "", "Topic to steer generation (e.g. 'Launch week recap')")
	rootCmd.Flags().StringVar(&instructionsFlag, "instructions", "", "Free-form guidance for the generator")
	rootCmd.Flags().BoolVar(&noBrowserFlag, "no-browser", false, "Print authorization URLs instead of opening a browser")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()
	logging.Init()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	opts := studio.Options{Config: cfg}
	if noBrowserFlag {
		opts.OpenURL = printAuthURL
	}

	session, err := studio.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create studio session")
	}
	defer session.Close()

	logging.NewStartupSummary("poststudio").
		Endpoint("api", cfg.APIBaseURL).
		Feature("browserOpen", !noBrowserFlag).
		Config("pollInterval", cfg.PollInterval.String()).
		Config("pollTimeout", cfg.PollTimeout.String()).
		InitDuration(time.Since(start)).
		Log()

	target := targetFlag
	if target == "" {
		target = cli.PromptLine("Target account", "")
	}
	if target == "" {
		log.Fatal().Msg("No target account given")
	}

	ctx := context.Background()
	err = session.Generate(ctx, studio.GenerateRequest{
		TargetID:     target,
		Count:        countFlag,
		Mix:          studioapi.SlotMix{Posts: postsFlag, Threads: threadsFlag, Videos: videosFlag},
		Topic:        topicFlag,
		Instructions: instructionsFlag,
	})
	if err != nil {
		log.Fatal().Err(err).Str("target", target).Msg("failed to start generation")
	}

	progress := session.Progress()
	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("🎨 Post Studio")
	fmt.Println("============================================")
	fmt.Printf("Target: %s\n", target)
	fmt.Printf("Job: %s\n", progress.JobID)
	fmt.Printf("Slots: %d (posts %d, threads %d, videos %d)\n", countFlag, postsFlag, threadsFlag, videosFlag)
	if topicFlag != "" {
		fmt.Printf("Topic: %s\n", topicFlag)
	}
	fmt.Printf("Poll budget: %s\n", cli.FormatDurationShort(time.Until(progress.Deadline)))
	fmt.Println("--------------------------------------------")

	watchProgress(session)
	printBoard(session)
	commandLoop(ctx, session)
}

// watchProgress prints a line whenever the job's progress changes, until
// polling stops for any reason.
func watchProgress(session *studio.Session) {
	done := make(chan struct{})
	go func() {
		_ = session.Wait(context.Background())
		close(done)
	}()

	lastPercent := -1
	lastMessage := ""
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p := session.Progress()
			if p.Percent == lastPercent && p.Message == lastMessage {
				continue
			}
			lastPercent, lastMessage = p.Percent, p.Message
			line := fmt.Sprintf("⏳ %3d%%", p.Percent)
			if p.VideoSlot > 0 {
				line += fmt.Sprintf("  🎬 slot %d", p.VideoSlot)
			}
			if p.Message != "" {
				line += "  " + p.Message
			}
			fmt.Println(line)
		case <-done:
			p := session.Progress()
			switch p.Status {
			case studio.StatusCompleted:
				fmt.Println("✅ Generation complete!")
			case studio.StatusFailed:
				fmt.Printf("❌ Generation failed: %s\n", p.Message)
			case studio.StatusStalled:
				fmt.Printf("⚠️  No terminal status after %s, giving up on this job\n",
					cli.FormatDurationShort(time.Since(p.StartedAt)))
			}
			return
		}
	}
}

// printAuthURL is the --no-browser fallback: the user opens the link.
func printAuthURL(url string) error {
	fmt.Printf("🔗 Open to authorize: %s\n", url)
	return nil
}
