package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wumpusworld/internal/persistence/indexdb"
	"wumpusworld/internal/sim/tuning"
	"wumpusworld/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		seed        = flag.Int64("seed", 0, "board seed when HELLO carries none (0 = time-based)")
		configDir   = flag.String("configs", "./configs", "config directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir     = flag.String("data", "./data", "runtime data directory (turn logs, audit)")
		saveDir     = flag.String("saves", ".", "directory SAVE and HELLO.load paths are resolved in")
		autoplay    = flag.Bool("autoplay", false, "force autoplay on for every match")
		readTimeout = flag.Duration("read_timeout", 10*time.Minute, "close a connection after this long without a client message")
		noRecord    = flag.Bool("no_record", false, "disable per-match turn logs and the audit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cfg := ws.Config{
		Tuning:      tune,
		DataDir:     *dataDir,
		SaveDir:     *saveDir,
		Seed:        *seed,
		Autoplay:    *autoplay,
		ReadTimeout: *readTimeout,
	}
	if *noRecord {
		cfg.DataDir = ""
	} else if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	idx, err := openIndex(*dataDir, *noRecord)
	if err != nil {
		logger.Fatalf("index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		cfg.Index = idx
	}

	wsSrv := ws.NewServer(cfg, logger)
	defer wsSrv.Close()

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, wsSrv.Metrics())
	})

	if envBool("WW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/matches", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"matches": wsSrv.Matches()})
		})
		mux.HandleFunc("/admin/v1/tuning", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(tune)
		})
	} else {
		logger.Printf("admin endpoints disabled (WW_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("WW_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (side=%d pits=%d%% autoplay=%v)", *addr, tune.Board.Side, tune.Board.PitProbability, *autoplay || tune.Autoplay.Enabled)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// openIndex opens the SQLite match index unless recording is off or
// WW_INDEX_BACKEND disables it.
func openIndex(dataDir string, noRecord bool) (*indexdb.SQLiteIndex, error) {
	if noRecord {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "matches.sqlite"))
	default:
		return nil, fmt.Errorf("unknown WW_INDEX_BACKEND %q", backend)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, m ws.Metrics) {
	fmt.Fprintf(rw, "# HELP wumpus_sessions Current number of connected matches.\n")
	fmt.Fprintf(rw, "# TYPE wumpus_sessions gauge\n")
	fmt.Fprintf(rw, "wumpus_sessions %d\n", m.ActiveSessions)

	fmt.Fprintf(rw, "# HELP wumpus_matches_total Matches started since boot.\n")
	fmt.Fprintf(rw, "# TYPE wumpus_matches_total counter\n")
	fmt.Fprintf(rw, "wumpus_matches_total %d\n", m.MatchesTotal)

	fmt.Fprintf(rw, "# HELP wumpus_turns_total Turns resolved since boot.\n")
	fmt.Fprintf(rw, "# TYPE wumpus_turns_total counter\n")
	fmt.Fprintf(rw, "wumpus_turns_total{source=%q} %d\n", "manual", m.TurnsTotal-m.AutoTurnsTotal)
	fmt.Fprintf(rw, "wumpus_turns_total{source=%q} %d\n", "autoplay", m.AutoTurnsTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
