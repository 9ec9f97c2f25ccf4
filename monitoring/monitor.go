// Package monitoring serves the state of a coupled run over HTTP: request
// tables, exchange channels, message traffic and the resource usage of the
// process.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/sarchlab/coupling/dec"
	"github.com/sarchlab/coupling/hooking"
	"github.com/sarchlab/coupling/monitoring/web"
	"github.com/sarchlab/coupling/request"
	"github.com/sarchlab/coupling/tracing"
	"github.com/sarchlab/coupling/transport"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns a coupled run into a server that external tools can query.
// It observes request managers and channels through their hooks and serves
// snapshots, so that handlers never touch the state owned by rank
// goroutines. Everything must be registered before the ranks start.
type Monitor struct {
	portNumber int

	lock     sync.Mutex
	managers []*managerState
	byDomain map[hooking.Hookable]*managerState
	channels map[channelKey]dec.Info
	traffic  *tracing.TransportTracer

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// managerState is what the monitor knows about one request manager.
type managerState struct {
	Name     string
	Rank     int
	BaseTag  int
	MaxTag   int
	Requests map[request.ID]request.Info
}

func (s *managerState) key() string {
	return fmt.Sprintf("%s[%d]", s.Name, s.Rank)
}

type channelKey struct {
	name string
	rank int
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		byDomain: make(map[hooking.Hookable]*managerState),
		channels: make(map[channelKey]dec.Info),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterManager starts watching a request manager.
func (m *Monitor) RegisterManager(rm *request.Manager) {
	baseTag, maxTag := rm.TagRange()
	state := &managerState{
		Name:     rm.Name(),
		Rank:     rm.Rank(),
		BaseTag:  baseTag,
		MaxTag:   maxTag,
		Requests: make(map[request.ID]request.Info),
	}

	m.lock.Lock()
	m.managers = append(m.managers, state)
	m.byDomain[rm] = state
	m.lock.Unlock()

	rm.AcceptHook(m)
}

// RegisterChannel starts watching an exchange channel.
func (m *Monitor) RegisterChannel(c *dec.Channel) {
	info := c.Info()

	m.lock.Lock()
	m.channels[channelKey{info.Name, info.Rank}] = info
	m.lock.Unlock()

	c.AcceptHook(m)
}

// RegisterTransportTracer sets the tracer that reports message traffic.
func (m *Monitor) RegisterTransportTracer(t *tracing.TransportTracer) {
	m.traffic = t
}

// Func updates the snapshots when a watched manager or channel fires a hook.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch item := ctx.Item.(type) {
	case request.Info:
		state, ok := m.byDomain[ctx.Domain]
		if !ok {
			return
		}

		if ctx.Pos == request.HookPosRequestDeleted {
			delete(state.Requests, item.ID)
			return
		}

		state.Requests[item.ID] = item
	case dec.Info:
		m.channels[channelKey{item.Name, item.Rank}] = item
	}
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_managers", m.listManagers)
	r.HandleFunc("/api/manager/{name}", m.managerDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/requests/{name}", m.listRequests)
	r.HandleFunc("/api/channels", m.listChannels)
	r.HandleFunc("/api/traffic", m.reportTraffic)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring coupled run with http://localhost:%d\n", port)

	r := m.router()

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	return port
}

type managerRsp struct {
	Name        string `json:"name"`
	NumRequests int    `json:"num_requests"`
}

func (m *Monitor) listManagers(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := make([]managerRsp, 0, len(m.managers))
	for _, s := range m.managers {
		rsp = append(rsp, managerRsp{s.key(), len(s.Requests)})
	}
	m.lock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) managerDetails(w http.ResponseWriter, r *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state := m.findManagerOr404(w, mux.Vars(r)["name"])
	if state == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(state)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	ManagerName string `json:"manager_name,omitempty"`
	FieldName   string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	state := m.findManagerOr404(w, req.ManagerName)
	if state == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(state)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type requestRsp struct {
	ID        int    `json:"id"`
	Direction string `json:"direction"`
	Peer      int    `json:"peer"`
	Tag       int    `json:"tag"`
	Type      string `json:"type"`
	Count     int    `json:"count"`
	Async     bool   `json:"async"`
	Completed bool   `json:"completed"`
	Cancelled bool   `json:"cancelled"`
	Err       string `json:"err,omitempty"`
}

func (m *Monitor) listRequests(w http.ResponseWriter, r *http.Request) {
	m.lock.Lock()
	state := m.findManagerOr404(w, mux.Vars(r)["name"])
	if state == nil {
		m.lock.Unlock()
		return
	}

	rsp := make([]requestRsp, 0, len(state.Requests))
	for _, info := range state.Requests {
		entry := requestRsp{
			ID:        int(info.ID),
			Direction: info.Direction.String(),
			Peer:      info.Peer,
			Tag:       info.Tag,
			Type:      info.Type.String(),
			Count:     info.Count,
			Async:     info.Async,
			Completed: info.Completed,
			Cancelled: info.Cancelled,
		}
		if info.Err != nil {
			entry.Err = transport.ErrorString(info.Err)
		}

		rsp = append(rsp, entry)
	}
	m.lock.Unlock()

	sort.Slice(rsp, func(i, j int) bool { return rsp[i].ID < rsp[j].ID })

	writeJSON(w, rsp)
}

type channelRsp struct {
	Name      string `json:"name"`
	Rank      int    `json:"rank"`
	Side      string `json:"side"`
	State     string `json:"state"`
	Round     int    `json:"round"`
	Unmatched int    `json:"unmatched"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := make([]channelRsp, 0, len(m.channels))
	for _, c := range m.channels {
		rsp = append(rsp, channelRsp{
			Name:      c.Name,
			Rank:      c.Rank,
			Side:      c.Side,
			State:     c.State.String(),
			Round:     c.Round,
			Unmatched: c.NbUnmatched,
		})
	}
	m.lock.Unlock()

	sort.Slice(rsp, func(i, j int) bool {
		if rsp[i].Name != rsp[j].Name {
			return rsp[i].Name < rsp[j].Name
		}

		return rsp[i].Rank < rsp[j].Rank
	})

	writeJSON(w, rsp)
}

type trafficRsp struct {
	Context  string `json:"context"`
	Src      int    `json:"src"`
	Dst      int    `json:"dst"`
	Messages int    `json:"messages"`
	Bytes    int    `json:"bytes"`
}

func (m *Monitor) reportTraffic(w http.ResponseWriter, _ *http.Request) {
	rsp := []trafficRsp{}

	if m.traffic != nil {
		for _, t := range m.traffic.Traffic() {
			rsp = append(rsp, trafficRsp{
				Context:  t.Context,
				Src:      t.Src,
				Dst:      t.Dst,
				Messages: t.Messages,
				Bytes:    t.Bytes,
			})
		}
	}

	writeJSON(w, rsp)
}

// findManagerOr404 must be called with the lock held.
func (m *Monitor) findManagerOr404(
	w http.ResponseWriter,
	name string,
) *managerState {
	for _, s := range m.managers {
		if s.key() == name {
			return s
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Manager not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
