package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gencodedoc/internal/autosave"
	"gencodedoc/internal/compress"
	"gencodedoc/internal/config"
	"gencodedoc/internal/database"
	"gencodedoc/internal/fs"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/store"
)

// Project is the fully wired per-project context: config, metadata
// store, content store, scanner and version manager.
type Project struct {
	Config  *config.Config
	DB      *database.SQLiteDatabase
	Store   *store.ContentStore
	Scanner *fs.Scanner
	Manager *gcd.VersionManager
}

// Close releases the project's store connection.
func (p *Project) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// OpenProject wires a Project for projectPath. The storage directory and
// metadata store are created on first use.
func OpenProject(projectPath string, logger gcd.Logger, clock gcd.Clock) (*Project, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StorageDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := database.NewSQLiteDatabase(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	compressor, err := compress.New(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, err
	}

	contentStore := store.New(db, compressor, cfg.CompressionEnabled, clock)

	filter := fs.NewIgnoreFilter(
		append([]string{cfg.StoragePath}, cfg.Ignore.Dirs...),
		append([]string{config.DefaultConfigName}, cfg.Ignore.Files...),
		cfg.Ignore.Extensions,
		cfg.Ignore.Patterns,
	)
	scanner := fs.NewScanner(abs, filter, logger)

	manager := gcd.NewVersionManager(abs, db, contentStore, scanner, logger, clock)

	return &Project{
		Config:  cfg,
		DB:      db,
		Store:   contentStore,
		Scanner: scanner,
		Manager: manager,
	}, nil
}

// Registry caches wired projects by absolute path and owns the running
// autosave controllers. The request router holds one Registry; there are
// no process-wide singletons beyond it.
type Registry struct {
	logger gcd.Logger
	clock  gcd.Clock

	mu          sync.Mutex
	projects    map[string]*Project
	controllers map[string]*autosave.Controller
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger gcd.Logger, clock gcd.Clock) *Registry {
	return &Registry{
		logger:      logger,
		clock:       clock,
		projects:    make(map[string]*Project),
		controllers: make(map[string]*autosave.Controller),
	}
}

// Project returns the cached wiring for projectPath, creating it on
// first use.
func (r *Registry) Project(projectPath string) (*Project, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.projects[abs]; ok {
		return p, nil
	}

	// A project is only opened through the registry once it has been
	// initialized; direct OpenProject callers may bootstrap freely.
	if !config.Exists(abs) {
		if _, err := os.Stat(filepath.Join(abs, config.DefaultStoragePath)); err != nil {
			return nil, fmt.Errorf("%w: %s", gcd.ErrNotInitialized, abs)
		}
	}

	p, err := OpenProject(abs, r.logger, r.clock)
	if err != nil {
		return nil, err
	}
	r.projects[abs] = p
	return p, nil
}

// Invalidate drops the cached wiring for projectPath so the next request
// reloads fresh configuration. Call after any configuration mutation.
func (r *Registry) Invalidate(projectPath string) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.projects[abs]; ok {
		p.Close()
		delete(r.projects, abs)
	}
}

// StartAutosave launches an autosave controller for projectPath. A
// controller already running for the project is an error.
func (r *Registry) StartAutosave(projectPath, mode string) (*autosave.Controller, error) {
	p, err := r.Project(projectPath)
	if err != nil {
		return nil, err
	}
	abs := p.Config.ProjectPath

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers[abs]; ok && c.Running() {
		return nil, fmt.Errorf("%w: autosave already running for %s", gcd.ErrInvalid, abs)
	}

	observer := autosave.NewFsnotifyObserver(p.Config.StorageDir(), r.logger)
	controller, err := autosave.NewController(p.Manager, p.Config.Autosave, mode, observer, r.logger, r.clock)
	if err != nil {
		return nil, err
	}
	if err := controller.Start(abs); err != nil {
		return nil, err
	}
	r.controllers[abs] = controller
	return controller, nil
}

// StopAutosave stops the controller for projectPath. Returns whether one
// was running.
func (r *Registry) StopAutosave(projectPath string) bool {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return false
	}

	r.mu.Lock()
	controller, ok := r.controllers[abs]
	if ok {
		delete(r.controllers, abs)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	controller.Stop()
	return true
}

// AutosaveStatus reports the running controllers as path → mode.
func (r *Registry) AutosaveStatus() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]string, len(r.controllers))
	for path, c := range r.controllers {
		if c.Running() {
			status[path] = c.Mode()
		}
	}
	return status
}

// AutosaveRunning reports whether projectPath has a running controller.
func (r *Registry) AutosaveRunning(projectPath string) bool {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[abs]
	return ok && c.Running()
}

// Shutdown stops every controller and closes every project.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	controllers := r.controllers
	projects := r.projects
	r.controllers = make(map[string]*autosave.Controller)
	r.projects = make(map[string]*Project)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Stop()
	}
	for _, p := range projects {
		p.Close()
	}
}
