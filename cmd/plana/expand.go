package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/api"
	"github.com/ShayCichocki/plana/internal/cache"
	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/decompose"
	"github.com/ShayCichocki/plana/internal/examples"
	"github.com/ShayCichocki/plana/internal/grounding"
	"github.com/ShayCichocki/plana/internal/plan"
	"github.com/ShayCichocki/plana/internal/signals"
	"github.com/ShayCichocki/plana/internal/state"
	"github.com/ShayCichocki/plana/internal/tui"
	"github.com/ShayCichocki/plana/pkg/models"
)

var (
	expandDepth       int
	expandMode        string
	expandConcurrency int
	expandCandidates  int
	expandHuman       bool
	expandProgress    bool
	expandFrom        string
	expandPostProcess bool
	expandGrounding   bool
	expandNoCache     bool
	expandShowPrompts bool
	expandVerbose     bool
)

var expandCmd = &cobra.Command{
	Use:   "expand <goal>",
	Short: "Expand a goal into a plan",
	Long: `Expand a goal into a hierarchical plan of steps.

The plan is written to the output directory as <goal>.txt, together with
a <goal>.plan dump that 'plana show' and '--from' can read back.

Choosers:
  backend (default)  Claude ranks the candidates and the best is used
  --human            You pick each breakdown on the console

Strategies (--mode):
  one_by_one   One request per node
  as_a_list    One request per group of siblings

Stopping:
  Press q in the progress view, Q in the human menu, or run 'plana stop'
  from another terminal. The partial plan is saved either way.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if expandFrom == "" && len(args) == 0 {
			return errors.New("give a goal to expand, or --from to resume a saved plan")
		}
		return nil
	},
	RunE: runExpand,
}

func init() {
	expandCmd.Flags().IntVar(&expandDepth, "depth", 0, "Deepest level that is still expanded")
	expandCmd.Flags().StringVar(&expandMode, "mode", "", "Expansion strategy: one_by_one or as_a_list")
	expandCmd.Flags().IntVarP(&expandConcurrency, "concurrency", "j", 0, "Backend requests allowed in flight at once")
	expandCmd.Flags().IntVarP(&expandCandidates, "candidates", "n", 0, "Candidate breakdowns requested per node")
	expandCmd.Flags().BoolVar(&expandHuman, "human", false, "Pick each breakdown yourself")
	expandCmd.Flags().BoolVar(&expandProgress, "progress", false, "Show the live progress view")
	expandCmd.Flags().StringVar(&expandFrom, "from", "", "Resume a saved plan by .plan path, or by name (newest save of that name)")
	expandCmd.Flags().BoolVar(&expandPostProcess, "post-process", false, "Ask Claude to remove equivalent steps afterwards")
	expandCmd.Flags().BoolVar(&expandGrounding, "grounding", false, "Prefix prompts with related indexed documents")
	expandCmd.Flags().BoolVar(&expandNoCache, "no-cache", false, "Do not offer cached breakdowns")
	expandCmd.Flags().BoolVar(&expandShowPrompts, "show-prompts", false, "Print prompts and completions")
	expandCmd.Flags().BoolVarP(&expandVerbose, "verbose", "v", false, "Print the debug log path and request totals")
}

// applyExpandFlags copies flags the user set onto cfg.
func applyExpandFlags(cmd *cobra.Command, cfg *config.Config) error {
	set := map[string]string{}
	flags := cmd.Flags()
	if flags.Changed("depth") {
		set["expand.max_depth"] = strconv.Itoa(expandDepth)
	}
	if flags.Changed("mode") {
		set["expand.mode"] = expandMode
	}
	if flags.Changed("concurrency") {
		set["expand.max_concurrent_requests"] = strconv.Itoa(expandConcurrency)
	}
	if flags.Changed("candidates") {
		set["expand.candidate_count"] = strconv.Itoa(expandCandidates)
	}
	if expandHuman {
		set["expand.chooser"] = config.ChooserHuman
	}
	if flags.Changed("progress") {
		set["display.show_progress"] = strconv.FormatBool(expandProgress)
	}
	if flags.Changed("post-process") {
		set["expand.post_process"] = strconv.FormatBool(expandPostProcess)
	}
	if flags.Changed("grounding") {
		set["expand.use_grounding"] = strconv.FormatBool(expandGrounding)
	}
	if expandNoCache {
		set["expand.use_cache"] = "false"
	}
	if expandShowPrompts {
		set["display.show_prompts"] = "true"
		set["display.show_results"] = "true"
	}

	for _, s := range config.Settings() {
		if v, ok := set[s.Key]; ok {
			if err := cfg.Apply(s.Key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// session carries the state of one expand run.
type session struct {
	cfg      *config.Config
	live     *decompose.LiveConfig
	tree     *plan.Tree
	client   *api.Client
	limited  *api.Limited
	expander *decompose.Expander
	logger   *decompose.DebugLogger
	history  *state.DB
	runID    string
	started  time.Time

	mu       sync.Mutex
	textPath string
	dumpPath string
}

// save writes the text and dump files once per run.
func (s *session) save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textPath != "" {
		return s.textPath, nil
	}

	dir := s.cfg.OutputDir()
	header := runHeader(s.live.Snapshot(), s.tree.Description(s.tree.Root()), time.Since(s.started), s.expander.Requests())
	textPath, err := plan.SaveText(dir, s.tree, header)
	if err != nil {
		return "", err
	}
	dumpPath, err := plan.SaveDump(dir, s.tree)
	if err != nil {
		return "", err
	}
	s.textPath, s.dumpPath = textPath, dumpPath
	s.logger.Log("saved %s and %s", textPath, dumpPath)
	return textPath, nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyExpandFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.New().String()[:8]
	logger, err := decompose.NewDebugLogger(cfg.LogPath())
	if err != nil {
		logger = decompose.NopLogger()
	}
	defer logger.Close()
	logger.Log("run %s started", runID)

	apiKey, keySource, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return fmt.Errorf("%w: set ANTHROPIC_API_KEY or run 'plana config anthropic.api_key <key>'", err)
	}
	logger.Log("credentials from %s", keySource)
	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	var tree *plan.Tree
	if expandFrom != "" {
		if tree, err = plan.LoadDump(cfg.OutputDir(), expandFrom); err != nil {
			return err
		}
	} else {
		tree = plan.New(strings.Join(args, " "))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, saving and stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	stopper, err := signals.NewManager(cfg.SignalsDir())
	if err != nil {
		return fmt.Errorf("watch for stop requests: %w", err)
	}
	defer stopper.Close()
	go func() {
		select {
		case <-stopper.Stopped():
			logger.Log("stop requested through %s", stopper.Dir())
			cancel()
		case <-ctx.Done():
		}
	}()

	deps, exStore := openStores(cfg, logger)
	go func() {
		if err := exStore.Watch(ctx); err != nil {
			logger.Log("examples watch: %v", err)
		}
	}()
	if cfg.Expand.UseGrounding {
		idx, err := grounding.Open(cfg.IndexPath())
		if err != nil {
			color.Yellow("Grounding disabled: %v", err)
		} else {
			defer idx.Close()
			deps.Grounder = idx
		}
	}

	live := decompose.NewLiveConfig(cfg)
	human := cfg.Expand.Chooser == config.ChooserHuman
	if human {
		deps.Chooser = decompose.NewHumanChooser(decompose.HumanConfig{
			In:       os.Stdin,
			Out:      os.Stdout,
			Cache:    deps.Cache,
			Examples: exStore,
			Settings: live,
		})
	}

	s := &session{
		cfg:     cfg,
		live:    live,
		tree:    tree,
		client:  client,
		limited: api.NewLimited(client, cfg.Expand.MaxConcurrentRequests),
		logger:  logger,
		started: time.Now(),
	}
	if history, err := state.Open(cfg.HistoryPath()); err != nil {
		logger.Log("run history disabled: %v", err)
	} else {
		defer history.Close()
		s.history = history
		s.runID = runID
		err := history.StartRun(&state.Run{
			ID:        runID,
			Goal:      tree.Description(tree.Root()),
			Mode:      cfg.Expand.Mode,
			Chooser:   cfg.Expand.Chooser,
			MaxDepth:  cfg.Expand.MaxDepth,
			StartedAt: s.started,
		})
		if err != nil {
			logger.Log("record run start: %v", err)
		}
	}
	deps.OnQuit = func(*plan.Tree) error {
		_, err := s.save()
		return err
	}

	progress := cfg.Display.ShowProgress && !human
	if progress {
		deps.Output = nil
	}
	s.expander = decompose.New(s.limited, live, deps)

	if progress {
		err = runWithProgress(ctx, cancel, s)
	} else {
		fmt.Printf("Expanding %q (run %s)\n", tree.Description(tree.Root()), runID)
		err = s.expander.Expand(ctx, tree)
	}
	return finishExpand(ctx, s, err)
}

// openStores opens the decomposition cache and the example store. The cache
// is always open so human picks are recorded; expand.use_cache only decides
// whether it is consulted.
func openStores(cfg *config.Config, logger *decompose.DebugLogger) (decompose.Dependencies, *examples.Store) {
	exStore := examples.Open(cfg.ExamplesPath())
	return decompose.Dependencies{
		Cache:    cache.Open(cfg.CachePath()),
		Examples: exStore,
		Logger:   logger,
		Output:   os.Stdout,
	}, exStore
}

// runWithProgress runs the expansion behind the bubbletea progress view.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, s *session) error {
	snapshot := func() tui.ExpandState {
		root := s.tree.Root()
		finished := 0
		for state, n := range s.tree.CountStates(root) {
			if state.Terminal() {
				finished += n
			}
		}
		return tui.ExpandState{
			Goal:      s.tree.Description(root),
			Tree:      s.tree.RenderTree(root, true),
			Nodes:     s.tree.Len(),
			Finished:  finished,
			InFlight:  s.limited.InFlight(),
			Capacity:  s.limited.Capacity(),
			Requests:  s.limited.Requests(),
			StartedAt: s.started,
		}
	}

	program, _ := tui.NewExpandProgram(snapshot, cancel)
	s.logger.SetSink(tui.LogSender(program.Send))
	defer s.logger.SetSink(nil)

	errCh := make(chan error, 1)
	go func() {
		err := s.expander.Expand(ctx, s.tree)
		errCh <- err
		program.Send(tui.ExpandDoneMsg{Err: err})
	}()
	if _, err := program.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("progress view: %w", err)
	}
	return <-errCh
}

// finishExpand saves the plan and reports how the run ended.
func finishExpand(ctx context.Context, s *session, runErr error) error {
	stopped := errors.Is(runErr, decompose.ErrQuit) || (runErr != nil && ctx.Err() != nil)

	path, saveErr := s.save()
	if saveErr != nil {
		color.Red("Could not save plan: %v", saveErr)
	}

	status := state.RunDone
	switch {
	case stopped:
		status = state.RunStopped
	case runErr != nil:
		status = state.RunFailed
	}
	s.record(status, path, runErr)

	var be *api.BackendError
	switch {
	case stopped:
		color.Yellow("Stopped. Partial plan saved to %s", path)
		return nil
	case errors.As(runErr, &be):
		color.Red("%s", be.Error())
		if path != "" {
			fmt.Printf("Partial plan saved to %s\n", path)
		}
		return runErr
	case runErr != nil:
		return runErr
	}

	if !s.cfg.Display.ShowProgress || s.cfg.Expand.Chooser == config.ChooserHuman {
		fmt.Println()
		fmt.Print(s.tree.RenderTree(s.tree.Root(), false))
	}
	fmt.Printf("\n%s Plan saved to %s\n", color.GreenString("✓"), path)

	if s.live.Snapshot().Expand.PostProcess {
		revised, err := s.expander.PostProcess(ctx, s.tree)
		if err != nil {
			color.Red("%v", err)
			return err
		}
		postPath := postProcessPath(path)
		if err := os.WriteFile(postPath, []byte(revised), 0644); err != nil {
			return fmt.Errorf("write post-processed plan: %w", err)
		}
		fmt.Printf("%s Revised plan saved to %s\n", color.GreenString("✓"), postPath)
	}

	fmt.Println(decompose.RunData(time.Since(s.started), s.expander.Requests()))
	if expandVerbose {
		in, out := s.client.Tracker().Total()
		fmt.Printf("Peak in flight: %d, tokens in/out: %d/%d, log: %s\n", s.limited.Peak(), in, out, s.cfg.LogPath())
	}
	return nil
}

// record stores the outcome of the run in the history database, if open.
func (s *session) record(status state.RunStatus, path string, runErr error) {
	if s.history == nil {
		return
	}
	msg := ""
	if runErr != nil && status == state.RunFailed {
		msg = runErr.Error()
	}
	if err := s.history.FinishRun(s.runID, status, s.expander.Requests(), s.tree.Len(), path, msg); err != nil {
		s.logger.Log("record run finish: %v", err)
	}
}

// postProcessPath derives "<plan>-Post1.txt" from the saved text path.
func postProcessPath(textPath string) string {
	return strings.TrimSuffix(textPath, "."+plan.TextExt) + "-Post1." + plan.TextExt
}

// runHeader lists the settings that shaped the plan and the run totals.
func runHeader(cfg config.Config, goal string, elapsed time.Duration, requests int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	for _, s := range config.Settings() {
		if !strings.HasPrefix(s.Key, "expand.") && s.Key != "anthropic.model" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", s.Key, s.Value(&cfg))
	}
	b.WriteString(decompose.RunData(elapsed, requests))
	return b.String()
}

// countStates is used by show to summarise a loaded plan.
func countStates(t *plan.Tree) string {
	counts := t.CountStates(t.Root())
	var parts []string
	for _, st := range []models.NodeState{
		models.NodeStateCreated, models.NodeStateProcessing, models.NodeStateRequestSubmitted,
		models.NodeStateResponseReceived, models.NodeStateFinal, models.NodeStateDone,
	} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", st.Label(), n))
		}
	}
	return strings.Join(parts, ", ")
}
