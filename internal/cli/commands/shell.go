package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/synth"
)

const shellPrompt = "qcops> "

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive query shell",
		Long: `Start an interactive shell over one generated dataset. Every query command
(lineage, cqa, lots, partners, partner, deviations, summary, report) can be
typed without the qcops prefix and runs against the same snapshot.

Shell commands:
  .help     Show this help
  .reload   Regenerate the dataset from the current configuration
  .quit     Exit the shell`,
		Args: cobra.NoArgs,
		RunE: runShell,
	}
}

func runShell(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	sh := &Shell{Snapshot: cc.Snapshot, Out: cmd.OutOrStdout(), ErrOut: cmd.ErrOrStderr()}
	sh.reload = func(ctx context.Context) (*dataset.Snapshot, error) {
		return loadSnapshot(ctx, cc.Cfg, cc.Logger)
	}

	var history string
	if cc.Cfg.ConfigFile != "" {
		history = filepath.Join(filepath.Dir(cc.Cfg.ConfigFile), ".qcops_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     history,
		AutoComplete:    sh.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	meta := cc.Snapshot.Meta()
	_, _ = fmt.Fprintf(sh.Out, "qcops shell (snapshot %s, seed %d)\n", meta.ID, meta.Seed)
	_, _ = fmt.Fprintln(sh.Out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(sh.Out)

	ctx := cmd.Context()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := sh.Exec(ctx, line)
		if err != nil {
			_, _ = fmt.Fprintf(sh.ErrOut, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Shell runs query commands against one snapshot.
type Shell struct {
	Snapshot *dataset.Snapshot
	Out      io.Writer
	ErrOut   io.Writer

	reload func(ctx context.Context) (*dataset.Snapshot, error)
}

// Exec runs one input line. It reports quit for .quit and .exit.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if strings.HasPrefix(line, ".") {
		switch strings.ToLower(strings.Fields(line)[0]) {
		case ".quit", ".exit":
			return true, nil
		case ".help":
			s.printHelp()
			return false, nil
		case ".reload":
			if s.reload == nil {
				return false, fmt.Errorf("reload is not available")
			}
			snap, err := s.reload(ctx)
			if err != nil {
				return false, err
			}
			s.Snapshot = snap
			_, _ = fmt.Fprintf(s.Out, "Loaded snapshot %s\n", snap.Meta().ID)
			return false, nil
		}
		return false, fmt.Errorf("unknown shell command %s (try .help)", line)
	}

	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	root := newShellRoot()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SetOut(s.Out)
	root.SetErr(s.ErrOut)
	return false, root.ExecuteContext(WithSnapshot(ctx, s.Snapshot))
}

// newShellRoot builds a fresh command tree for one line so flag values do
// not carry over between lines.
func newShellRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "qcops",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(shellCommands()...)
	return root
}

func shellCommands() []*cobra.Command {
	return []*cobra.Command{
		NewLineageCommand(),
		NewCQACommand(),
		NewLotsCommand(),
		NewPartnersCommand(),
		NewPartnerCommand(),
		NewDeviationsCommand(),
		NewSummaryCommand(),
		NewReportCommand(),
	}
}

func (s *Shell) printHelp() {
	_, _ = fmt.Fprintln(s.Out, "Queries:")
	for _, c := range shellCommands() {
		_, _ = fmt.Fprintf(s.Out, "  %-12s %s\n", c.Name(), c.Short)
	}
	_, _ = fmt.Fprintln(s.Out)
	_, _ = fmt.Fprintln(s.Out, "Shell commands:")
	_, _ = fmt.Fprintln(s.Out, "  .help        Show this help")
	_, _ = fmt.Fprintln(s.Out, "  .reload      Regenerate the dataset")
	_, _ = fmt.Fprintln(s.Out, "  .quit        Exit the shell")
	_, _ = fmt.Fprintln(s.Out)
	_, _ = fmt.Fprintln(s.Out, "Use <query> --help for flags.")
}

// completer offers command names, lot ids after lineage and cqa, and
// partner names after partner.
func (s *Shell) completer() *readline.PrefixCompleter {
	lots := func(string) []string { return lotIDs(s.Snapshot.Lots()) }
	partners := func(string) []string {
		var names []string
		for _, p := range synth.Partners() {
			names = append(names, p.Name)
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("lineage", readline.PcItemDynamic(lots)),
		readline.PcItem("cqa", readline.PcItemDynamic(lots)),
		readline.PcItem("lots"),
		readline.PcItem("partners"),
		readline.PcItem("partner", readline.PcItemDynamic(partners)),
		readline.PcItem("deviations"),
		readline.PcItem("summary"),
		readline.PcItem("report"),
		readline.PcItem(".help"),
		readline.PcItem(".reload"),
		readline.PcItem(".quit"),
	)
}

// splitArgs splits a line on spaces, keeping single- or double-quoted
// sections together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}
