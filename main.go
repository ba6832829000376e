/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/l7mp/triplestream/internal/buildinfo"
	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/engine"
	"github.com/l7mp/triplestream/pkg/ntriples"
	"github.com/l7mp/triplestream/pkg/query"
	"github.com/l7mp/triplestream/pkg/term"
	"github.com/l7mp/triplestream/pkg/util"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

type config struct {
	queries, input             string
	metricsAddr, probeAddr     string
	workers, shards, queueSize int
	ttl                        time.Duration
	drop, synchronous          bool
}

func main() {
	var c config
	flag.StringVar(&c.queries, "queries", "", "The YAML file holding the standing queries.")
	flag.StringVar(&c.input, "input", "-", "The N-Triples input, \"-\" reads the standard input.")
	flag.StringVar(&c.metricsAddr, "metrics-bind-address", ":8080",
		"The address the metric endpoint binds to. Set to \"0\" to disable.")
	flag.StringVar(&c.probeAddr, "health-probe-bind-address", ":8081",
		"The address the probe endpoint binds to. Set to \"0\" to disable.")
	flag.IntVar(&c.workers, "workers", 1, "Number of ingestion workers.")
	flag.IntVar(&c.shards, "shards", engine.DefaultShards, "Number of index shards.")
	flag.IntVar(&c.queueSize, "queue-size", engine.DefaultQueueSize,
		"Default capacity of the per-query delivery queue.")
	flag.DurationVar(&c.ttl, "ttl", 0, "Default lifetime of partial results, 0 disables expiry.")
	flag.BoolVar(&c.drop, "drop", false, "Drop solutions on a full delivery queue instead of blocking ingestion.")
	flag.BoolVar(&c.synchronous, "sync", false, "Run result handlers on the ingestion path.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts))
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting triplestream %s", buildInfo.String()))

	if err := run(signals.SetupSignalHandler(), c, logger); err != nil {
		setupLog.Error(err, "problem running triplestream")
		os.Exit(1)
	}
}

func run(ctx context.Context, c config, logger logr.Logger) error {
	log := logger.WithName("setup")

	if c.queries == "" {
		return errors.New("no query file, use -queries")
	}
	if c.workers < 1 {
		return fmt.Errorf("invalid number of workers: %d", c.workers)
	}

	file, err := query.LoadFile(c.queries)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if c.input != "-" {
		f, err := os.Open(c.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	errCh := make(chan error, engine.ErrorChannelBufferSize)
	e, err := engine.New(engine.Options{
		Logger:            logger,
		Shards:            c.shards,
		ErrorChannel:      errCh,
		MetricsRegisterer: ctrlmetrics.Registry,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	out := &output{enc: json.NewEncoder(os.Stdout)}
	for i := range file.Queries {
		sub, err := subscribe(&file.Queries[i], c, out.handle)
		if err != nil {
			return err
		}
		if err := e.Register(sub); err != nil {
			return err
		}
	}
	log.Info("queries registered", "queries", util.Map(func(s *engine.Subscription) string {
		return s.Name()
	}, e.Subscriptions()))

	bgCtx, stop := context.WithCancel(ctx)
	bg, bgCtx := errgroup.WithContext(bgCtx)
	bg.Go(func() error { return e.Start(bgCtx) })
	bg.Go(func() error { return serve(bgCtx, c.metricsAddr, metricsHandler(), log) })
	bg.Go(func() error { return serve(bgCtx, c.probeAddr, probeHandler(), log) })
	bg.Go(func() error {
		for {
			select {
			case <-bgCtx.Done():
				return nil
			case err := <-errCh:
				logger.WithName("engine").Error(err, "asynchronous error")
			}
		}
	})

	ingestErr := ingest(ctx, e, in, c.workers, logger.WithName("ingest"))

	// flush the delivery queues before the background tasks go away
	e.Close()
	log.Info("ingestion finished", "stats", util.Stringify(e.Stats()))

	stop()
	return errors.Join(ingestErr, bg.Wait())
}

// subscribe creates the subscription of a query spec; per-query settings override the flags.
func subscribe(s *query.Spec, c config, h engine.Handler) (*engine.Subscription, error) {
	q, err := s.Compile()
	if err != nil {
		return nil, err
	}

	ttl, err := s.ParseTTL()
	if err != nil {
		return nil, err
	}
	if s.TTL == "" {
		ttl = c.ttl
	}

	delivery := engine.DeliveryOptions{Mode: engine.Queued, QueueSize: c.queueSize, Policy: engine.Block}
	if c.synchronous {
		delivery.Mode = engine.Synchronous
	}
	if c.drop {
		delivery.Policy = engine.Drop
	}
	if s.QueueSize > 0 {
		delivery.QueueSize = s.QueueSize
	}
	switch s.Policy {
	case "block":
		delivery.Policy = engine.Block
	case "drop":
		delivery.Policy = engine.Drop
	}

	return engine.NewSubscription(q, h, engine.WithDelivery(delivery), engine.WithTTL(ttl))
}

// ingest feeds the triples read from r to the engine using the given number of workers.
// Malformed statements are logged and skipped.
func ingest(ctx context.Context, e *engine.Engine, r io.Reader, workers int, log logr.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	triples := make(chan term.Triple, 16*workers)

	g.Go(func() error {
		defer close(triples)
		reader := ntriples.NewReader(r)
		for {
			t, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			var perr *ntriples.ParseError
			if errors.As(err, &perr) {
				log.Error(err, "skipping malformed statement")
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			select {
			case triples <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			for t := range triples {
				if err := e.OnTriple(ctx, t); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					// synchronous handler failures must not stop the stream
					log.Error(err, "failed to process triple", "worker", i, "triple", t.String())
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// output prints solutions as JSON lines.
type output struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type record struct {
	Query    string      `json:"query"`
	Bindings binding.Set `json:"bindings"`
}

func (o *output) handle(_ context.Context, s engine.Solution) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enc.Encode(record{Query: s.Query, Bindings: s.Bindings})
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

func probeHandler() http.Handler {
	h := &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}}
	mux := http.NewServeMux()
	mux.Handle("/healthz", http.StripPrefix("/healthz", h))
	mux.Handle("/healthz/", http.StripPrefix("/healthz", h))
	return mux
}

// serve runs an HTTP server until the context is canceled. An address of "0" disables it.
func serve(ctx context.Context, addr string, h http.Handler, log logr.Logger) error {
	if addr == "" || addr == "0" {
		return nil
	}

	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s: %w", addr, err)
	}
	return nil
}
