package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
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

	persistlog "gridswarm/internal/persistence/log"
	"gridswarm/internal/sim/tuning"
	"gridswarm/internal/sim/world"
	"gridswarm/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick index")
		seed       = flag.Int64("seed", -1, "override tuning seed (-1 keeps the tuning value)")
		workers    = flag.Int("workers", -1, "override tuning workers (-1 keeps the tuning value)")
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
	if *seed >= 0 {
		tune.Seed = uint64(*seed)
	}
	if *workers >= 0 {
		tune.Workers = *workers
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	run, err := persistlog.NewRunID()
	if err != nil {
		logger.Fatalf("run id: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, run, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	start := time.Now()
	w, err := tune.NewWorld()
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	logger.Printf("world %s run %s: %dx%d, %d entities placed in %s", *worldID, run, w.Width(), w.Height(), w.Len(), time.Since(start).Round(time.Millisecond))

	proc := world.NewProcessor(w, tune.ProcessorConfig(*worldID))
	proc.SetLogger(logger)

	tickLog := persistlog.NewTickLogger(worldDir, run)
	faultLog := persistlog.NewFaultLogger(worldDir, run)
	if idx != nil {
		proc.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		if err := idx.RecordRun(*worldID, tune, proc.Config().Workers); err != nil {
			logger.Printf("index backend: record run: %v", err)
		}
	} else {
		proc.SetTickLogger(tickLog)
	}

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		err := proc.Run(ctx)
		var ie *world.InvariantError
		if errors.As(err, &ie) {
			_ = faultLog.WriteInvariant(*worldID, w.Len(), ie)
			if idx != nil {
				idx.RecordFault(*worldID, ie)
			}
			// Bring the HTTP server down; main exits non-zero below.
			cancel()
		}
		runDone <- err
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if idx != nil {
			st := idx.Stats()
			writeMetrics(rw, *worldID, proc.CurrentTick(), proc.Metrics(), &st)
			return
		}
		writeMetrics(rw, *worldID, proc.CurrentTick(), proc.Metrics(), nil)
	})

	if envBool("GS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Run     string             `json:"run"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Run:     run,
				Tick:    proc.CurrentTick(),
				Metrics: proc.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})

		obsSrv := observer.NewServer(proc, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
		mux.HandleFunc("/admin/v1/observer/frame.png", obsSrv.PNGHandler())
	} else {
		logger.Printf("admin endpoints disabled (GS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("GS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GS_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	cancel()
	runErr := <-runDone
	_ = tickLog.Close()
	_ = faultLog.Close()
	if idx != nil {
		_ = idx.Close()
	}

	var ie *world.InvariantError
	if errors.As(runErr, &ie) {
		logger.Fatalf("world %s: %v", *worldID, ie)
	}
	logger.Printf("stopped at tick %d", proc.CurrentTick())
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

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteTick(entry)
	}
	if m.b != nil {
		errB = m.b.WriteTick(entry)
	}
	return errors.Join(errA, errB)
}
