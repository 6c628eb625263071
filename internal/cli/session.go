package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/config"
	"github.com/neptunelabs/fsi-client/internal/constants"
	"github.com/neptunelabs/fsi-client/internal/events"
	fsihttp "github.com/neptunelabs/fsi-client/internal/http"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/logging"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/metrics"
	"github.com/neptunelabs/fsi-client/internal/progress"
	"github.com/neptunelabs/fsi-client/internal/queue"
	"github.com/neptunelabs/fsi-client/internal/sink"
	fsistrings "github.com/neptunelabs/fsi-client/internal/util/strings"
)

// ErrMissingUser is returned when a command needs a login but no user is
// configured.
var ErrMissingUser = errors.New("user is required (--user, FSI_USER or config.ini)")

// loadConfig merges config file, environment and flags.
func loadConfig(f *globalFlags) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	applyFlags(cfg, f)
	return cfg, nil
}

// applyFlags overrides cfg with the flags that were given.
func applyFlags(cfg *config.Config, f *globalFlags) {
	if f.server != "" {
		cfg.ServerURL = f.server
	}
	if f.user != "" {
		cfg.User = f.user
	}
	if f.password != "" {
		cfg.Password = f.password
	}
	if f.lang != "" {
		cfg.Language = f.lang
	}
	if f.metricsFile != "" {
		cfg.MetricsFile = f.metricsFile
	}
	if f.continueOnError {
		cfg.ContinueOnError = true
	}
}

// session holds what one command needs to build and run a queue.
type session struct {
	cfg      *config.Config
	m        messages.Supplier
	log      *logging.Logger
	client   *api.Client
	metrics  *metrics.Recorder
	bus      *events.Bus
	reporter progress.Reporter
	prompter *prompter
	out      io.Writer
}

// need tells newSession what a command requires.
type need int

const (
	needLocal need = iota
	needServer
	needLogin
)

func needsFor(local bool) need {
	if local {
		return needLocal
	}
	return needLogin
}

// newSession loads the configuration and creates the API client. Missing
// credentials are asked for when the command logs in.
func newSession(out io.Writer, n need) (*session, error) {
	cfg, err := loadConfig(&flags)
	if err != nil {
		return nil, err
	}
	if n != needLocal {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	interactive := isInteractive()
	if n == needLogin {
		if cfg.User == "" {
			return nil, ErrMissingUser
		}
		if cfg.Password == "" && interactive {
			if cfg.Password, err = readPassword("Password for " + cfg.User); err != nil {
				return nil, err
			}
		}
	}
	if fsihttp.NeedsProxyPassword(cfg) && interactive {
		if cfg.ProxyPassword, err = readPassword("Proxy password for " + cfg.ProxyUser); err != nil {
			return nil, err
		}
	}

	var client *api.Client
	if n != needLocal {
		if client, err = api.NewClient(cfg); err != nil {
			return nil, err
		}
	}

	m := messages.New(cfg.Language)
	s := &session{
		cfg:     cfg,
		m:       m,
		log:     GetLogger(),
		client:  client,
		metrics: metrics.New(),
		bus:     events.NewBus(constants.EventBusDefaultBuffer),
		out:     out,
	}
	switch {
	case flags.quiet:
		s.reporter = progress.NoOpProgress{}
	case flags.plain || !term.IsTerminal(int(os.Stderr.Fd())):
		s.reporter = progress.NewCLIProgress(os.Stderr, m)
	default:
		s.reporter = progress.NewMultiBar(m)
	}
	s.prompter = newPrompter(os.Stdin, s.reporter.Writer(), m)
	return s, nil
}

// prompt returns the conflict and error policy for the queue.
func (s *session) prompt() queue.PromptFunc {
	switch {
	case flags.yes:
		return queue.Always(queue.ChoiceOverwriteAll)
	case flags.skipExisting:
		return queue.Always(queue.ChoiceSkipAll)
	case isInteractive():
		return s.prompter.Ask
	default:
		return nil
	}
}

// newQueue creates a queue wired to the session's observers.
func (s *session) newQueue() *queue.Queue {
	return s.newQueueWithHidden(false)
}

// newQueueWithHidden is newQueue with hidden local files included on request.
func (s *session) newQueueWithHidden(hidden bool) *queue.Queue {
	var c queue.Client
	if s.client != nil {
		c = s.client
	}
	return queue.New(c, queue.Options{
		LocalList:         localfs.ListOptions{IncludeHidden: hidden},
		ContinueOnError:   s.cfg.ContinueOnError,
		MaxRecursiveDepth: s.cfg.MaxRecursiveDepth,
		Prompt:            s.prompt(),
		Progress:          s.reporter.Report,
		Log:               s.log,
		Messages:          s.m,
		Metrics:           s.metrics,
		Events:            s.bus,
		OpenSink: func(ctx context.Context, target string) (sink.Sink, error) {
			hc, err := fsihttp.CreateTransferClient(s.cfg)
			if err != nil {
				return nil, err
			}
			return sink.Open(ctx, target, s.cfg, hc)
		},
	})
}

// run executes q, then prints the error summary and writes metrics.
func (s *session) run(ctx context.Context, q *queue.Queue) error {
	var wg sync.WaitGroup
	if flags.verbose {
		ch := s.bus.SubscribeAll()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				s.logEvent(ev)
			}
		}()
	}

	err := q.Run(ctx)
	s.reporter.Finish()
	s.bus.Close()
	wg.Wait()

	if s.cfg.MetricsFile != "" {
		if werr := s.metrics.WriteTextfile(s.cfg.MetricsFile); werr != nil {
			s.log.Warn().Err(werr).Str("path", s.cfg.MetricsFile).Msg("failed to write metrics")
		}
	}

	errs := q.Errors()
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\n%s:\n", fsistrings.Count(len(errs), "error"))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", queue.ErrorText(e, s.m))
		}
	}
	if err != nil {
		if queue.IsInsufficientSpace(err) {
			fmt.Fprintln(os.Stderr, "Free up space on the target or choose another download directory.")
		}
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("completed with %s", fsistrings.Count(len(errs), "error"))
	}
	return nil
}

func (s *session) logEvent(ev events.Event) {
	switch e := ev.(type) {
	case *events.EntryEvent:
		l := s.log.Debug().Str("op", e.Op).Str("path", e.Path).Str("outcome", string(e.Outcome))
		if e.Bytes > 0 {
			l = l.Str("size", fsistrings.Bytes(e.Bytes))
		}
		l.Err(e.Err).Msg("entry")
	case *events.ItemEvent:
		if e.Type() == events.EventItemFinished {
			s.log.Debug().Int("item", e.Index).Int("of", e.Count).Str("outcome", string(e.Outcome)).Msg(e.Task)
		}
	case *events.RunEvent:
		if e.Type() == events.EventRunFinished && s.bus.Dropped() > 0 {
			s.log.Debug().Int64("dropped", s.bus.Dropped()).Msg("verbose output incomplete")
		}
	}
}

// loginQueue returns a queue that starts with a login item.
func (s *session) loginQueue() *queue.Queue {
	q := s.newQueue()
	q.Login(s.cfg.User, s.cfg.Password)
	return q
}

// maskSecret hides all but the first character of a secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return s[:1] + strings.Repeat("*", 7)
}
