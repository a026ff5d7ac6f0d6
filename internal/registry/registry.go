package registry

import (
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
	"github.com/patchwatch/patchwatch/pkg/shared/vcsurl"
)

// Registry tracks which repositories are monitored. Registration is the only
// way a repository enters the pipeline; deregistration is a soft state so
// findings keep a valid reference.
type Registry struct {
	repos  store.RepositoryStore
	logger hclog.Logger
}

// New creates a Registry over the given repository store.
func New(repos store.RepositoryStore, logger hclog.Logger) *Registry {
	return &Registry{repos: repos, logger: logger}
}

// Register adds a repository by its HTTPS URL. A malformed URL yields a
// ValidationError; an already registered repository yields a ConflictError,
// which callers treat as a signal, not a failure.
func (r *Registry) Register(rawURL, language string) (model.Repository, error) {
	parsed, err := vcsurl.ParseRepositoryURL(rawURL)
	if err != nil {
		return model.Repository{}, errors.NewValidationError("repository URL", err.Error())
	}
	if language == "" {
		return model.Repository{}, errors.NewValidationError("language", "primary language must be specified")
	}

	repo := model.Repository{
		URL:       parsed.HTTPUrl,
		Host:      parsed.ParsedURL.Hostname(),
		Namespace: parsed.Namespace,
		Name:      parsed.Repository,
		Language:  strings.ToLower(language),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.repos.Add(repo); err != nil {
		return model.Repository{}, err
	}

	r.logger.Info("repository registered", "url", repo.URL, "language", repo.Language)
	return repo, nil
}

// Deregister marks a repository inactive. In-flight work is allowed to
// complete; the ingestor simply stops picking the repository up.
func (r *Registry) Deregister(url string) error {
	if err := r.repos.SetActive(url, false); err != nil {
		return err
	}
	r.logger.Info("repository deregistered", "url", url)
	return nil
}

// Active returns the repositories currently being watched.
func (r *Registry) Active() []model.Repository {
	var out []model.Repository
	for _, repo := range r.repos.List() {
		if repo.Active {
			out = append(out, repo)
		}
	}
	return out
}

// List returns all registered repositories, active or not.
func (r *Registry) List() []model.Repository {
	return r.repos.List()
}
