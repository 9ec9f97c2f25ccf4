package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/browser"
	"github.com/sarchlab/coupling/datarecording"
	"github.com/sarchlab/coupling/dec"
	"github.com/sarchlab/coupling/monitoring"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/tracing"
	"github.com/sarchlab/coupling/transport"
	"github.com/spf13/cobra"
)

type config struct {
	ranks       int
	baseTag     int
	maxTag      int
	record      string
	monitorPort int
	openMonitor bool
	trace       bool
}

func loadConfig(cmd *cobra.Command) (config, error) {
	flags := cmd.Flags()

	var c config
	var err error

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"ranks", &c.ranks},
		{"base-tag", &c.baseTag},
		{"max-tag", &c.maxTag},
		{"monitor-port", &c.monitorPort},
	} {
		if *f.dst, err = flags.GetInt(f.name); err != nil {
			return c, err
		}
	}

	if c.record, err = flags.GetString("record"); err != nil {
		return c, err
	}

	if c.openMonitor, err = flags.GetBool("open-monitor"); err != nil {
		return c, err
	}

	if c.trace, err = flags.GetBool("trace"); err != nil {
		return c, err
	}

	if c.ranks < 2 {
		return c, fmt.Errorf("at least 2 ranks are needed, got %d", c.ranks)
	}

	if c.baseTag < 0 || c.baseTag%request.TagModulo != 0 {
		return c, fmt.Errorf("base tag %d is not a multiple of %d",
			c.baseTag, request.TagModulo)
	}

	if c.maxTag >= 0 && c.maxTag < c.baseTag+request.TagModulo {
		return c, fmt.Errorf("max tag %d is too close to base tag %d",
			c.maxTag, c.baseTag)
	}

	return c, nil
}

// A session is the world a scenario runs in, together with everything that
// observes it.
type session struct {
	cfg   config
	world *transport.LocalWorld

	recorder  datarecording.DataRecorder
	run       *datarecording.RunRecorder
	dbTracer  *tracing.DBTracer
	reqTracer *tracing.RequestTracer
	sendTime  *tracing.TotalTimeTracer
	recvTime  *tracing.TotalTimeTracer
	traffic   *tracing.TransportTracer
	monitor   *monitoring.Monitor
}

func newSession(cfg config) (*session, error) {
	s := &session{
		cfg:      cfg,
		world:    transport.MakeLocalWorldBuilder().WithSize(cfg.ranks).Build(),
		sendTime: tracing.NewTotalTimeTracer(tracing.KindIs(tracing.KindSend)),
		recvTime: tracing.NewTotalTimeTracer(tracing.KindIs(tracing.KindRecv)),
		traffic:  tracing.NewTransportTracer(),
	}

	s.world.AcceptHook(s.traffic)

	tracers := []tracing.Tracer{s.sendTime, s.recvTime}

	if cfg.record != "" {
		recorder, err := openRecorder(cfg.record)
		if err != nil {
			return nil, err
		}

		s.recorder = recorder
		s.run = datarecording.NewRunRecorder(recorder)
		s.dbTracer = tracing.NewDBTracer(recorder)
		tracers = append(tracers, s.dbTracer)
	}

	s.reqTracer = tracing.NewRequestTracer(
		tracing.NewWallClock(), tracing.Tee(tracers...))

	if cfg.monitorPort >= 0 {
		s.monitor = monitoring.NewMonitor().WithPortNumber(cfg.monitorPort)
		s.monitor.RegisterTransportTracer(s.traffic)
	}

	return s, nil
}

func openRecorder(target string) (datarecording.DataRecorder, error) {
	if strings.HasPrefix(target, "clickhouse://") {
		opts, err := datarecording.ParseClickHouseURL(target)
		if err != nil {
			return nil, err
		}

		return datarecording.NewClickHouseRecorder(context.Background(), opts)
	}

	return datarecording.New(strings.TrimSuffix(target, ".sqlite3")), nil
}

func (s *session) managerBuilder() request.Builder {
	b := request.MakeBuilder().WithTagRange(s.cfg.baseTag, s.cfg.maxTag)

	if s.cfg.trace {
		b = b.WithTrace()
	}

	return b
}

// watchManager must be called on the rank owning the manager, before the
// manager is used.
func (s *session) watchManager(rm *request.Manager) {
	if rm == nil {
		return
	}

	rm.AcceptHook(s.reqTracer)

	if s.monitor != nil {
		s.monitor.RegisterManager(rm)
	}
}

func (s *session) watchChannel(c *dec.Channel) {
	s.watchManager(c.Manager())

	if s.monitor != nil {
		s.monitor.RegisterChannel(c)
	}
}

// start records the scenario parameters and starts the monitor.
func (s *session) start(scenario string, params map[string]string) {
	if s.run != nil {
		s.run.Start()
		s.run.Set("Scenario", scenario)
		s.run.Set("World", s.world.ID())
		s.run.Set("Ranks", strconv.Itoa(s.cfg.ranks))

		for k, v := range params {
			s.run.Set(k, v)
		}
	}

	if s.monitor == nil {
		return
	}

	port := s.monitor.StartServer()

	if s.cfg.openMonitor {
		url := fmt.Sprintf("http://localhost:%d", port)
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open %s: %v\n", url, err)
		}
	}
}

// progressBar creates a bar shown by the monitor. Without a monitor the bar
// is only counted.
func (s *session) progressBar(name string, total int) *monitoring.ProgressBar {
	if s.monitor == nil {
		return &monitoring.ProgressBar{Name: name, Total: uint64(total)}
	}

	return s.monitor.CreateProgressBar(name, uint64(total))
}

func (s *session) completeProgressBar(bar *monitoring.ProgressBar) {
	if s.monitor != nil {
		s.monitor.CompleteProgressBar(bar)
	}
}

// runRanks runs body on every rank of the world.
func (s *session) runRanks(body func(comm transport.Comm) error) error {
	return s.world.Run(body)
}

// finish prints the traffic summary and closes the recorder.
func (s *session) finish(out io.Writer) error {
	messages, bytes := s.traffic.Total()
	fmt.Fprintf(out, "messages: %d, bytes: %d\n", messages, bytes)
	fmt.Fprintf(out, "sends: %d (%.6fs), receives: %d (%.6fs)\n",
		s.sendTime.Count(), s.sendTime.TotalTime(),
		s.recvTime.Count(), s.recvTime.TotalTime())

	if s.recorder == nil {
		return nil
	}

	s.dbTracer.Terminate()
	s.run.Set("Messages", strconv.Itoa(messages))
	s.run.Set("Bytes", strconv.Itoa(bytes))
	s.run.End()

	return s.recorder.Close()
}
