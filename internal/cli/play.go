package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studybattle-client/internal/api"
	"studybattle-client/internal/battle"
	"studybattle-client/internal/config"
	"studybattle-client/internal/domain"
	"studybattle-client/internal/infra/profile"
	"studybattle-client/internal/transport/ws"
)

// NewPlayCmd builds the CLI subcommand that connects to a match and plays it
// interactively.
func NewPlayCmd() *cobra.Command {
	var create bool
	var course string

	cmd := &cobra.Command{
		Use:   "play [match-id]",
		Short: "Connect to a match and battle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matchID := ""
			if len(args) == 1 {
				matchID = args[0]
			}
			return runPlay(cmd.Context(), matchID, create, course)
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create a new match instead of joining one")
	cmd.Flags().StringVar(&course, "course", "", "course id for a created match")
	return cmd
}

func runPlay(ctx context.Context, matchID string, create bool, course string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	store, err := profile.Open(cfg.Profile.Path)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer store.Close()

	name, course := resolveIdentity(cfg, store, course)
	if name == "" {
		return fmt.Errorf("player name required (flag --name, config, or previous session)")
	}

	client := newAPIClient(cfg, logger)
	switch {
	case create:
		if course == "" {
			return fmt.Errorf("--course is required with --create")
		}
		ticket, err := client.CreateMatch(ctx, api.CreateMatchRequest{
			CourseID:         course,
			PlayerName:       name,
			TimeLimitSeconds: cfg.Match.TimeLimitSeconds,
			Difficulty:       domain.Difficulty(cfg.Match.Difficulty),
			QuestionTypes:    questionTypes(cfg),
		})
		if err != nil {
			return err
		}
		matchID = ticket.MatchID
		fmt.Printf("Match created. Share this id with your opponent: %s\n", matchID)
	case matchID == "":
		return fmt.Errorf("a match id is required unless --create is given")
	default:
		if err := client.JoinMatch(ctx, matchID, name); err != nil {
			if !errors.Is(err, domain.ErrNameTaken) {
				return err
			}
			// Same name already registered: treat as a rejoin.
			logger.Warn().Str("match_id", matchID).Msg("name already registered, reconnecting")
		}
	}

	if err := store.SaveProfile(name, course); err != nil {
		logger.Warn().Err(err).Msg("could not persist profile")
	}

	return playMatch(ctx, cfg, store, matchID, name, logger)
}

func playMatch(ctx context.Context, cfg config.Config, store *profile.Store, matchID, name string, logger zerolog.Logger) error {
	session := battle.NewSession(matchID, name, clockwork.NewRealClock(), logger)
	defer session.Close()

	conn, err := ws.Dial(ctx, cfg.Server.BaseURL, matchID, name, session, logger,
		ws.WithPingInterval(config.TTLDuration(cfg.Transport.PingInterval, 30*time.Second)))
	if err != nil {
		return err
	}
	defer conn.Close()
	session.SetSender(conn)

	snaps, cancel := session.Subscribe()
	defer cancel()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	fmt.Println("Waiting for the match to start. Type an answer and press enter to submit.")
	fmt.Println("Commands: /skip  /retry  /quit")

	var last domain.MatchSnapshot
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			renderTransition(last, snap)
			if snap.Phase == domain.PhaseMatchEnded {
				archive(store, session.ID(), snap, logger)
				printReview(snap)
				return nil
			}
			last = snap
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, line, session, conn); quit {
				return nil
			}
		case <-stop:
			fmt.Println("\nLeaving match.")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleLine(ctx context.Context, line string, session *battle.Session, conn *ws.Client) bool {
	switch strings.TrimSpace(line) {
	case "":
	case "/skip":
		if err := session.SkipRound(); err != nil {
			fmt.Printf("cannot skip: %v\n", err)
		}
	case "/retry":
		if err := conn.Retry(ctx); err != nil {
			fmt.Printf("retry failed: %v\n", err)
		}
	case "/quit":
		fmt.Println("Leaving match.")
		return true
	default:
		if err := session.SubmitAnswer(line); err != nil {
			fmt.Printf("answer not sent: %v\n", err)
		}
	}
	return false
}

// renderTransition prints what changed between two snapshots. This is a
// deliberately plain view; any richer renderer can consume the same
// snapshots.
func renderTransition(prev, cur domain.MatchSnapshot) {
	if cur.Phase != prev.Phase {
		switch cur.Phase {
		case domain.PhaseAwaitingOpponent:
			fmt.Println("Connected. Waiting for opponent...")
		case domain.PhaseReady:
			fmt.Printf("Match ready: %s\n", rosterLine(cur))
		case domain.PhaseRoundResolved:
			if cur.LastResult != nil {
				printResult(*cur.LastResult)
			}
		}
	}

	if cur.Question != nil && (prev.Question == nil || prev.Question.ID != cur.Question.ID) {
		q := cur.Question
		fmt.Printf("\n--- Round %d (%s, %ds) ---\n%s\n", len(cur.History), q.Type, q.TimeLimit, q.Text)
		for i, opt := range q.Options {
			fmt.Printf("  %c) %s\n", 'A'+i, opt)
		}
	}

	if cur.SecondsLeft != prev.SecondsLeft && cur.Phase == domain.PhaseRoundActive {
		fmt.Printf("  %ds left\n", cur.SecondsLeft)
	}
	if cur.Cooldown > 0 && cur.Cooldown != prev.Cooldown {
		fmt.Printf("  cooldown: %ds\n", cur.Cooldown)
	}
	if cur.Notice != "" && cur.Notice != prev.Notice {
		fmt.Printf("  ! %s\n", cur.Notice)
	}
	if cur.ErrMessage != "" && cur.ErrMessage != prev.ErrMessage {
		fmt.Printf("  ! %s (use /retry to reconnect)\n", cur.ErrMessage)
	}
	if len(cur.SkipVotes) > 0 && len(cur.SkipVotes) != len(prev.SkipVotes) {
		fmt.Printf("  skip votes: %s\n", strings.Join(cur.SkipVotes, ", "))
	}
}

func printResult(res domain.RoundResult) {
	switch {
	case res.Timeout:
		fmt.Println("Round timed out.")
	case res.Skipped:
		fmt.Println("Round skipped.")
	case res.Winner != "":
		fmt.Printf("%s wins the round (%d damage, %.1fs).\n", res.Winner, res.Damage, res.TimeTaken)
	}
	fmt.Printf("Answer: %s\n", res.CorrectAnswer)
	if res.Solution != "" {
		fmt.Printf("Solution: %s\n", res.Solution)
	}
}

func printReview(snap domain.MatchSnapshot) {
	fmt.Printf("\n=== Match over. Winner: %s ===\n", snap.Winner)
	fmt.Println(rosterLine(snap))
	for i, rec := range snap.History {
		fmt.Printf("\nRound %d: %s\n", i+1, rec.Question.Text)
		if rec.Resolved {
			fmt.Printf("  answer: %s\n", rec.CorrectAnswer)
			for _, cit := range rec.Citations {
				if cit.Page > 0 {
					fmt.Printf("  source: %s p.%d\n", cit.FileName, cit.Page)
				} else {
					fmt.Printf("  source: %s\n", cit.FileName)
				}
			}
		}
	}
}

func rosterLine(snap domain.MatchSnapshot) string {
	names := make([]string, 0, len(snap.Players))
	for name := range snap.Players {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		p := snap.Players[name]
		parts = append(parts, fmt.Sprintf("%s %dhp", p.Name, p.HP))
	}
	return strings.Join(parts, " vs ")
}

func archive(store *profile.Store, sessionID string, snap domain.MatchSnapshot, logger zerolog.Logger) {
	err := store.ArchiveMatch(profile.ArchivedMatch{
		SessionID:  sessionID,
		MatchID:    snap.MatchID,
		Player:     snap.Player,
		Winner:     snap.Winner,
		Rounds:     len(snap.History),
		FinishedAt: time.Now(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("could not archive match")
	}
}

func questionTypes(cfg config.Config) []domain.QuestionType {
	types := make([]domain.QuestionType, 0, len(cfg.Match.QuestionTypes))
	for _, t := range cfg.Match.QuestionTypes {
		types = append(types, domain.QuestionType(t))
	}
	return types
}

func resolveIdentity(cfg config.Config, store *profile.Store, course string) (string, string) {
	name := cfg.Player.Name
	if course == "" {
		course = cfg.Match.Course
	}
	if name != "" && course != "" {
		return name, course
	}
	if saved, ok, err := store.LoadProfile(); err == nil && ok {
		if name == "" {
			name = saved.PlayerName
		}
		if course == "" {
			course = saved.LastCourseID
		}
	}
	return name, course
}
