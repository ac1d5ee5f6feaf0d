package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/graph"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/provider"
	"github.com/Akhilkandikonda/pipedream/internal/reddit"
	"github.com/Akhilkandikonda/pipedream/internal/state"
)

// Session holds the state store, the event sink and the provider clients
// shared by every source built from one configuration. Provider clients are
// created on first use so a config with only Reddit sources never needs a
// OneDrive login.
type Session struct {
	Config *config.Config
	Store  *state.Store
	Sink   poll.Sink

	httpClient *http.Client
	logger     *slog.Logger

	graphBaseURL   string
	redditBaseURL  string
	redditTokenURL string

	graph  *graph.Client
	reddit *reddit.Client
}

// NewSession opens the state database named by cfg. The caller closes the
// session.
func NewSession(ctx context.Context, cfg *config.Config, sink poll.Sink, logger *slog.Logger) (*Session, error) {
	dbPath := cfg.StatePath()
	if dbPath == "" {
		return nil, fmt.Errorf("cannot determine state database path; set state_db in %s", config.DefaultConfigPath())
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	store, err := state.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}

	return &Session{
		Config:        cfg,
		Store:         store,
		Sink:          sink,
		httpClient:    httpClient,
		logger:        logger,
		graphBaseURL:  graph.DefaultBaseURL,
		redditBaseURL: reddit.DefaultBaseURL,
	}, nil
}

// Close releases the state database.
func (s *Session) Close() error {
	return s.Store.Close()
}

func (s *Session) graphClient() (*graph.Client, error) {
	if s.graph != nil {
		return s.graph, nil
	}

	tokenPath := s.Config.OneDriveTokenPath()
	if tokenPath == "" {
		return nil, fmt.Errorf("%w: cannot determine OneDrive token path", poll.ErrConfiguration)
	}

	// The token source refreshes for the life of the process.
	ts, err := graph.NewCredentials(s.Config.OneDrive.ClientID, tokenPath, s.logger).Source(context.Background())
	if err != nil {
		if errors.Is(err, graph.ErrNotLoggedIn) {
			return nil, fmt.Errorf("%w: not logged in to OneDrive; run 'pipedream login onedrive' first", poll.ErrConfiguration)
		}

		return nil, err
	}

	s.graph = graph.NewClient(s.graphBaseURL, s.httpClient, ts, s.Config.UserAgent, s.logger)

	return s.graph, nil
}

func (s *Session) redditClient() (*reddit.Client, error) {
	if s.reddit != nil {
		return s.reddit, nil
	}

	creds := reddit.Credentials{
		ClientID:     s.Config.Reddit.ClientID,
		ClientSecret: s.Config.Reddit.ClientSecret,
		TokenURL:     s.redditTokenURL,
	}

	ts, err := reddit.AppTokenSource(context.Background(), creds, s.httpClient, s.Config.UserAgent, s.logger)
	if err != nil {
		if errors.Is(err, reddit.ErrNoCredentials) {
			return nil, fmt.Errorf("%w: reddit client_id and client_secret are required (or set %s and %s)",
				poll.ErrConfiguration, config.EnvRedditClientID, config.EnvRedditClientSecret)
		}

		return nil, err
	}

	s.reddit = reddit.NewClient(s.redditBaseURL, s.httpClient, ts, s.Config.UserAgent, s.logger)

	return s.reddit, nil
}

// Provider creates the provider for the named source and resolves its
// scope. The returned config carries the scope.
func (s *Session) Provider(ctx context.Context, name string) (poll.Provider, poll.SourceConfig, error) {
	src, err := s.Config.Source(name)
	if err != nil {
		return nil, poll.SourceConfig{}, err
	}

	pc, err := src.PollConfig(name)
	if err != nil {
		return nil, poll.SourceConfig{}, err
	}

	var prov poll.Provider

	switch src.Type {
	case config.TypeOneDrive:
		od, scope, err := s.buildOneDrive(ctx, &src)
		if err != nil {
			return nil, pc, fmt.Errorf("source %q: %w", name, err)
		}

		prov, pc.Scope = od, scope
	case config.TypeReddit:
		rc, err := s.redditClient()
		if err != nil {
			return nil, pc, fmt.Errorf("source %q: %w", name, err)
		}

		opts := provider.RedditOptions{Depth: src.Depth, Limit: src.Limit}
		prov, pc.Scope = provider.NewReddit(rc, opts, s.logger), provider.RedditScope(src.Subreddit, src.Post)
	default:
		return nil, pc, fmt.Errorf("%w: source %q: unknown type %q", poll.ErrConfiguration, name, src.Type)
	}

	if pc.Scope.Provider == "" {
		pc.Scope.Provider = prov.Name()
	}

	return prov, pc, nil
}

// Build creates the named source: it picks the provider, resolves the scope
// and wires the store and sink.
func (s *Session) Build(ctx context.Context, name string) (*poll.Source, error) {
	prov, pc, err := s.Provider(ctx, name)
	if err != nil {
		return nil, err
	}

	if src := s.Config.Sources[name]; src.Type == config.TypeReddit && src.Post == "" {
		return nil, fmt.Errorf("%w: source.%s.post is required; run 'pipedream options %s' to list recent posts",
			poll.ErrConfiguration, name, name)
	}

	s.logger.Debug("source built",
		slog.String("source", name),
		slog.String("scope", pc.Scope.Key()),
	)

	return poll.NewSource(pc, prov, s.Store, s.Sink, s.logger)
}

func (s *Session) buildOneDrive(ctx context.Context, src *config.Source) (*provider.OneDrive, poll.Scope, error) {
	client, err := s.graphClient()
	if err != nil {
		return nil, poll.Scope{}, err
	}

	traversal, err := provider.ParseTraversal(src.Traversal)
	if err != nil {
		return nil, poll.Scope{}, fmt.Errorf("%w: %w", poll.ErrConfiguration, err)
	}

	od := provider.NewOneDrive(client, src.DriveID, traversal, s.logger)

	scope, err := od.ResolveScope(ctx, provider.FolderRef{Path: src.Folder, ID: src.FolderID}, src.IsRecursive())
	if err != nil {
		return nil, poll.Scope{}, err
	}

	return od, scope, nil
}

// BuildAll builds the named sources, or every configured source when names
// is empty.
func (s *Session) BuildAll(ctx context.Context, names []string) ([]*poll.Source, error) {
	if len(names) == 0 {
		names = s.Config.SourceNames()
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no sources configured in %s", poll.ErrConfiguration, s.Config.Path)
	}

	sources := make([]*poll.Source, 0, len(names))

	for _, name := range names {
		src, err := s.Build(ctx, name)
		if err != nil {
			return nil, err
		}

		sources = append(sources, src)
	}

	return sources, nil
}
