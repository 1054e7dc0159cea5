package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/mind-engage/mindengage-exams/internal/analytics"
	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	"github.com/mind-engage/mindengage-exams/internal/assembly"
	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/auth"
	"github.com/mind-engage/mindengage-exams/internal/cache"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/results"
	"github.com/mind-engage/mindengage-exams/internal/seed"
	"github.com/mind-engage/mindengage-exams/internal/tenants"
)

var (
	serveCmd = kingpin.Command("serve", "Run the HTTP API").Default()

	indexCmd = kingpin.Command("ensure-indexes", "Create the secondary indexes of backends that need them")

	seedCmd     = kingpin.Command("seed", "Load a YAML fixture")
	seedFile    = seedCmd.Flag("file", "Path to the fixture").Short('f').Required().ExistingFile()
	seedWorkers = seedCmd.Flag("workers", "Concurrent question inserts").Default("4").Int()

	userCmd       = kingpin.Command("create-user", "Create a user, typically the first superadmin")
	userEmail     = userCmd.Flag("email", "Login email").Required().String()
	userName      = userCmd.Flag("name", "Display name").Required().String()
	userRole      = userCmd.Flag("role", "Role").Default(string(rbac.RoleSuperAdmin)).Enum(roleNames()...)
	userInstitute = userCmd.Flag("institute", "Institute id, required for every role but superadmin").String()
	userPassword  = userCmd.Flag("password", "Initial password").Envar("EXAMD_PASSWORD").Required().String()
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("0.1")
	kingpin.CommandLine.Help = "Multi-tenant examination service"
	cmd := kingpin.Parse()

	cfg := config.FromEnv()
	log := cfg.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := docstore.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.MongoDB)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer func() { _ = store.Close(context.Background()) }()

	switch cmd {
	case serveCmd.FullCommand():
		serve(cfg, store, log)
	case indexCmd.FullCommand():
		ensureIndexes(store, log)
	case seedCmd.FullCommand():
		runSeed(store, log)
	case userCmd.FullCommand():
		createUser(store, log)
	default:
		log.Fatal("unknown command")
	}
}

func serve(cfg config.Config, store docstore.Store, log *logrus.Logger) {
	ensureIndexes(store, log)

	svc := exam.NewServices(store, log)
	asm := assembly.New(store, nil)
	cch := newCache(cfg, log)
	if c, ok := cch.(io.Closer); ok {
		defer c.Close()
	}
	stats := analytics.NewService(store, cch, cfg.AnalyticsCacheTTL, log)
	res := results.NewService(store, asm, audit.NewLog(store, log), stats, log)

	handler := api.NewRouter(api.Deps{
		Store:           store,
		Services:        svc,
		Results:         res,
		Analytics:       stats,
		Assembler:       asm,
		Auth:            auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		Tenants:         tenants.NewResolver(tenants.DefaultHeader),
		Log:             log,
		CORSOrigins:     cfg.CORSOrigins,
		EnableLocalAuth: cfg.EnableLocalAuth,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "mode": cfg.Mode, "db": cfg.DBDriver}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("stopped")
}

// newCache uses Redis when configured and reachable, the in-process cache otherwise.
func newCache(cfg config.Config, log *logrus.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "exams:")
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-process cache")
		return cache.NewMemory()
	}
	return c
}

func ensureIndexes(store docstore.Store, log *logrus.Logger) {
	ix, ok := store.(docstore.Indexer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	specs := append([]docstore.IndexSpec{{Collection: audit.Collection, Fields: []string{"key"}}}, exam.Indexes...)
	if err := ix.EnsureIndexes(ctx, specs); err != nil {
		log.WithError(err).Fatal("ensure indexes")
	}
	log.Info("indexes ensured")
}

func runSeed(store docstore.Store, log *logrus.Logger) {
	f, err := seed.ReadFile(*seedFile)
	if err != nil {
		log.WithError(err).Fatal("read fixture")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := seed.NewLoader(exam.NewServices(store, log), *seedWorkers, log).Load(ctx, f); err != nil {
		log.WithError(err).Fatal("seed")
	}
}

func createUser(store docstore.Store, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	users := exam.NewUserService(store, log)
	u, err := users.Create(ctx, rbac.Principal{UserID: "cli", Role: rbac.RoleSuperAdmin}, exam.User{
		Meta:     exam.Meta{InstituteID: *userInstitute},
		Name:     *userName,
		Email:    *userEmail,
		Role:     rbac.Role(*userRole),
		Password: *userPassword,
	})
	if err != nil {
		log.WithError(err).Fatal("create user")
	}
	log.WithFields(logrus.Fields{"id": u.ID, "email": u.Email, "role": u.Role}).Info("user created")
}

func roleNames() []string {
	out := make([]string, len(rbac.Roles))
	for i, r := range rbac.Roles {
		out[i] = string(r)
	}
	return out
}
