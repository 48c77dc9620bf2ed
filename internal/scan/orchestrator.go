// Package scan runs discovery scans: a real TCP probe of the local host
// followed by a paced sweep of the target subnet. Every scan streams typed
// events to live subscribers and journals its log to the ScanStore.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

// DefaultSubnet is swept when the caller names none.
const DefaultSubnet = "192.168.1.0/24"

var (
	// ErrUnknownScan is returned for scan IDs with no live or retained run.
	ErrUnknownScan = errors.New("unknown scan")

	errCancelled = errors.New("scan cancelled")
)

// Options tunes the orchestrator. Zero values select the defaults.
type Options struct {
	ProbeTimeout time.Duration // per-port connect timeout; default 500ms
	MinHostDelay time.Duration // default 400ms
	MaxHostDelay time.Duration // default 1s
	DNSPassDelay time.Duration // default 600ms

	// ZeroDelays disables every pause; used by tests.
	ZeroDelays bool

	// Retention is how long finished runs stay available for replay.
	Retention time.Duration // default 10m

	SubscriberBuffer int // default 64
	JournalDepth     int // default 256

	// Rand drives the sweep's pacing and vulnerability counts.
	// Nil seeds from the clock.
	Rand *rand.Rand

	// Resolver reverse-resolves the loopback address. Nil uses net.DefaultResolver.
	Resolver Resolver

	// ProbeAddr and ProbePorts override the local probe target.
	ProbeAddr  string
	ProbePorts []ProbePort

	// Hosts overrides the sweep target list.
	Hosts []Host

	// OnFinish is called once per run after its terminal state is stored.
	OnFinish func(model.ScanResult)
}

func (o *Options) applyDefaults() {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.MinHostDelay <= 0 {
		o.MinHostDelay = 400 * time.Millisecond
	}
	if o.MaxHostDelay < o.MinHostDelay {
		o.MaxHostDelay = o.MinHostDelay + 600*time.Millisecond
	}
	if o.DNSPassDelay <= 0 {
		o.DNSPassDelay = 600 * time.Millisecond
	}
	if o.ZeroDelays {
		o.MinHostDelay, o.MaxHostDelay, o.DNSPassDelay = 0, 0, 0
	}
	if o.Retention <= 0 {
		o.Retention = 10 * time.Minute
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver.LookupAddr
	}
	if o.ProbeAddr == "" {
		o.ProbeAddr = LoopbackAddr
	}
	if o.ProbePorts == nil {
		o.ProbePorts = LocalProbePorts
	}
	if o.Hosts == nil {
		o.Hosts = SweepHosts
	}
}

// Run is one executing or finished scan.
type Run struct {
	ID       uuid.UUID
	UserID   string
	ScanType string
	Subnet   string

	hub     *hub
	journal *journal
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status model.ScanStatus
	result model.ScanResult
}

// Done is closed when the run has reached a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Status returns the current lifecycle state.
func (r *Run) Status() model.ScanStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the final counters; valid once Done is closed.
func (r *Run) Result() model.ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Orchestrator starts and tracks discovery scans.
type Orchestrator struct {
	assets repository.AssetStore
	scans  repository.ScanStore
	opts   Options
	logger *zap.Logger

	base     context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup

	mu   sync.Mutex
	runs map[uuid.UUID]*Run

	rngMu sync.Mutex
}

// New creates an Orchestrator. Runs live until they finish, are cancelled,
// or Shutdown is called.
func New(assets repository.AssetStore, scans repository.ScanStore, opts Options, logger *zap.Logger) *Orchestrator {
	opts.applyDefaults()
	base, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		assets:   assets,
		scans:    scans,
		opts:     opts,
		logger:   logger,
		base:     base,
		stopBase: stop,
		runs:     make(map[uuid.UUID]*Run),
	}
}

// Start records a new running scan and executes it in the background.
// ctx bounds only the creation of the scan record.
func (o *Orchestrator) Start(ctx context.Context, userID, scanType, subnet string) (*Run, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &model.ErrValidation{Msg: "user_id required"}
	}
	switch scanType {
	case "":
		scanType = model.ScanTypeQuick
	case model.ScanTypeQuick, model.ScanTypeFull, model.ScanTypeTargeted, model.ScanTypeAgentSync:
	default:
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown scan_type %q", scanType)}
	}
	if subnet == "" {
		subnet = DefaultSubnet
	}
	if _, _, err := net.ParseCIDR(subnet); err != nil {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid subnet %q", subnet)}
	}

	rec := &model.AssetScan{
		UserID:       userID,
		ScanType:     scanType,
		Status:       model.ScanStatusRunning,
		TargetSubnet: subnet,
		TriggeredBy:  "manual",
	}
	if err := o.scans.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	runCtx, cancel := context.WithCancel(o.base)
	run := &Run{
		ID:       rec.ID,
		UserID:   userID,
		ScanType: scanType,
		Subnet:   subnet,
		hub:      newHub(rec.ID, o.opts.SubscriberBuffer),
		journal:  newJournal(rec.ID, o.scans, o.opts.JournalDepth, o.logger),
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   model.ScanStatusRunning,
	}

	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()

	o.wg.Add(1)
	go o.execute(runCtx, run)

	o.logger.Info("scan started",
		zap.String("scan_id", run.ID.String()),
		zap.String("user_id", userID),
		zap.String("scan_type", scanType),
		zap.String("subnet", subnet),
	)
	return run, nil
}

// Subscribe returns every event emitted so far and a channel of the events
// that follow. The channel is closed when the scan ends, when cancel is
// called, or when the subscriber falls too far behind; in the last case the
// caller may subscribe again and skip events by Seq.
func (o *Orchestrator) Subscribe(scanID uuid.UUID) ([]Event, <-chan Event, func(), error) {
	run, ok := o.lookup(scanID)
	if !ok {
		return nil, nil, nil, ErrUnknownScan
	}
	backlog, live, cancel := run.hub.subscribe()
	return backlog, live, cancel, nil
}

// Cancel stops a running scan. Cancelling a finished scan is a no-op.
func (o *Orchestrator) Cancel(scanID uuid.UUID) error {
	run, ok := o.lookup(scanID)
	if !ok {
		return ErrUnknownScan
	}
	run.cancel()
	return nil
}

// Lookup returns a live or retained run.
func (o *Orchestrator) Lookup(scanID uuid.UUID) (*Run, bool) {
	return o.lookup(scanID)
}

// Get returns the stored scan record if userID started it.
func (o *Orchestrator) Get(ctx context.Context, userID string, scanID uuid.UUID) (*model.AssetScan, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &model.ErrValidation{Msg: "user_id required"}
	}
	return o.scans.GetByID(ctx, userID, scanID)
}

// Shutdown cancels every running scan and waits for them to finish
// recording their terminal state, or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopBase()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) lookup(id uuid.UUID) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[id]
	return r, ok
}

// execute runs the phases and always leaves the scan in a terminal state.
func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	defer o.wg.Done()
	defer run.cancel()

	var counts model.ScanResult
	err := o.safePhases(ctx, run, &counts)

	status := model.ScanStatusCompleted
	switch {
	case err == nil:
		o.progress(run, 100)
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		status = model.ScanStatusCancelled
		err = errCancelled
		o.log(run, "Scan cancelled before completion", model.LogWarn)
	default:
		status = model.ScanStatusFailed
		o.log(run, "Scan failed: "+err.Error(), model.LogError)
		o.logger.Error("scan failed", zap.String("scan_id", run.ID.String()), zap.Error(err))
	}

	run.journal.close()

	counts.Status = status
	counts.Progress = run.hub.progress()
	if status == model.ScanStatusCompleted {
		counts.Progress = 100
	}
	fctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	if ferr := o.scans.Finish(fctx, run.ID, counts); ferr != nil {
		o.logger.Error("scan finish write failed",
			zap.String("scan_id", run.ID.String()),
			zap.Error(ferr),
		)
	}
	cancel()

	if err == nil {
		run.hub.publish(Event{
			Type:          EventComplete,
			Status:        status,
			AssetsFound:   counts.AssetsFound,
			AssetsNew:     counts.AssetsNew,
			AssetsUpdated: counts.AssetsUpdated,
		})
	} else {
		run.hub.publish(Event{Type: EventError, Status: status, Message: err.Error()})
	}

	run.mu.Lock()
	run.status = status
	run.result = counts
	run.mu.Unlock()
	run.hub.close()
	close(run.done)

	o.logger.Info("scan finished",
		zap.String("scan_id", run.ID.String()),
		zap.String("status", string(status)),
		zap.Int("assets_found", counts.AssetsFound),
		zap.Int("assets_new", counts.AssetsNew),
	)
	if o.opts.OnFinish != nil {
		o.opts.OnFinish(counts)
	}

	time.AfterFunc(o.opts.Retention, func() {
		o.mu.Lock()
		delete(o.runs, run.ID)
		o.mu.Unlock()
	})
}

// safePhases converts a panic in any phase into an error.
func (o *Orchestrator) safePhases(ctx context.Context, run *Run, counts *model.ScanResult) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scan panicked: %v", p)
		}
	}()
	return o.phases(ctx, run, counts)
}

func (o *Orchestrator) phases(ctx context.Context, run *Run, counts *model.ScanResult) error {
	run.hub.publish(Event{Type: EventStart})
	o.log(run, fmt.Sprintf("Starting %s scan on subnet %s", run.ScanType, run.Subnet), model.LogInfo)
	o.progress(run, 5)

	// Phase 1: local probe.
	o.log(run, fmt.Sprintf("Probing localhost (%s) with a TCP connect scan", o.opts.ProbeAddr), model.LogInfo)
	o.progress(run, 10)

	hostname := reverseName(ctx, o.opts.Resolver, o.opts.ProbeAddr, "localhost")
	ports, err := ProbeHost(ctx, o.opts.ProbeAddr, o.opts.ProbePorts, o.opts.ProbeTimeout)
	if err != nil {
		return err
	}
	o.log(run, fmt.Sprintf("Localhost: found %d open ports: %s", len(ports), portList(ports)), model.LogSuccess)
	o.progress(run, 20)

	local := o.localAsset(run, hostname, ports)
	o.record(ctx, run, counts, local, fmt.Sprintf("Discovered: %s (%s), risk %d", local.Hostname, local.IPAddress, local.RiskScore))
	o.progress(run, 30)

	// Phase 2: subnet sweep.
	hosts := o.opts.Hosts
	if run.ScanType == model.ScanTypeQuick && len(hosts) > quickSweepSize {
		hosts = hosts[:quickSweepSize]
	}
	step := 0
	if len(hosts) > 0 {
		step = 60 / len(hosts)
	}
	o.log(run, fmt.Sprintf("Scanning %s: %d hosts in range", run.Subnet, len(hosts)), model.LogInfo)

	for i, h := range hosts {
		if err := sleep(ctx, o.hostDelay()); err != nil {
			return err
		}
		o.log(run, fmt.Sprintf("Probing %s (%s)", h.IP, h.Hostname), model.LogInfo)

		a := o.sweptAsset(run, h)
		o.record(ctx, run, counts, a, fmt.Sprintf("Found: %s (%s), %s, risk %d", h.Hostname, h.IP, h.OS, a.RiskScore))
		o.progress(run, 30+(i+1)*step)
	}

	// Phase 3: reverse DNS pass.
	o.log(run, "Running reverse DNS resolution pass", model.LogInfo)
	o.progress(run, 92)
	if err := sleep(ctx, o.opts.DNSPassDelay); err != nil {
		return err
	}
	o.log(run, fmt.Sprintf("DNS resolution complete: %d hostnames resolved", counts.AssetsFound), model.LogSuccess)

	// Phase 4: finalize.
	o.progress(run, 98)
	o.log(run, fmt.Sprintf("Scan complete: %d assets discovered, %d new", counts.AssetsFound, counts.AssetsNew), model.LogSuccess)
	return ctx.Err()
}

// record upserts a discovered asset and emits asset_discovered on success.
// Persistence failures skip the host without failing the scan.
func (o *Orchestrator) record(ctx context.Context, run *Run, counts *model.ScanResult, a *model.Asset, found string) {
	action, err := o.assets.Upsert(ctx, a)
	if err != nil {
		if ctx.Err() == nil {
			o.log(run, fmt.Sprintf("Skipped %s: %v", a.Hostname, err), model.LogWarn)
		}
		return
	}
	counts.AssetsFound++
	if action == model.ActionCreated {
		counts.AssetsNew++
	} else {
		counts.AssetsUpdated++
	}
	run.hub.publish(Event{Type: EventAssetDiscovered, Asset: a})
	o.log(run, found, model.LogSuccess)
}

func (o *Orchestrator) localAsset(run *Run, hostname string, ports []model.PortInfo) *model.Asset {
	osName := localOSName()
	res := risk.Score(risk.Legacy{LegacyInput: risk.LegacyInput{
		OpenPorts: ports,
		OSName:    osName,
		LastSeen:  time.Now(),
		AssetType: model.AssetTypeServer,
	}})
	_, services := profileFor(model.AssetTypeServer)
	return &model.Asset{
		UserID:          run.UserID,
		Hostname:        hostname,
		IPAddress:       o.opts.ProbeAddr,
		AssetType:       model.AssetTypeServer,
		OSName:          &osName,
		OSVersion:       model.StrPtr(runtime.Version()),
		OpenPorts:       ports,
		Services:        services,
		RiskScore:       res.Score,
		RiskFactors:     res.Factors,
		DiscoveryMethod: model.DiscoveryPing,
		Status:          res.Status,
		Tags:            []string{"discovered", "localhost"},
	}
}

func (o *Orchestrator) sweptAsset(run *Run, h Host) *model.Asset {
	ports, services := profileFor(h.Type)
	vulns := o.randInt(5)
	res := risk.Score(risk.Legacy{LegacyInput: risk.LegacyInput{
		OpenPorts:    ports,
		OSName:       h.OS,
		LastSeen:     time.Now(),
		VulnCount:    vulns,
		AssetType:    h.Type,
		IsPrivileged: h.Type == model.AssetTypeServer || h.Type == model.AssetTypeDatabase,
	}})
	osName, osVersion := splitOS(h.OS)
	return &model.Asset{
		UserID:          run.UserID,
		Hostname:        h.Hostname,
		IPAddress:       h.IP,
		MACAddress:      model.StrPtr(h.MAC),
		AssetType:       h.Type,
		OSName:          model.StrPtr(osName),
		OSVersion:       model.StrPtr(osVersion),
		OpenPorts:       ports,
		Services:        services,
		Subnet:          model.StrPtr(subnetBase(run.Subnet)),
		RiskScore:       res.Score,
		RiskFactors:     res.Factors,
		VulnCount:       vulns,
		DiscoveryMethod: model.DiscoveryPing,
		Status:          res.Status,
		Tags:            []string{"discovered", h.Type},
	}
}

func (o *Orchestrator) log(run *Run, msg, level string) {
	entry := model.ScanLogEntry{Time: time.Now().UTC(), Message: msg, Level: level}
	if _, ok := run.hub.publish(Event{Type: EventLog, Entry: &entry}); ok {
		run.journal.log(entry)
	}
}

func (o *Orchestrator) progress(run *Run, p int) {
	if ev, ok := run.hub.publish(Event{Type: EventProgress, Progress: p}); ok {
		run.journal.progress(ev.Progress)
	}
}

func (o *Orchestrator) hostDelay() time.Duration {
	span := o.opts.MaxHostDelay - o.opts.MinHostDelay
	if span <= 0 {
		return o.opts.MinHostDelay
	}
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.opts.MinHostDelay + time.Duration(o.opts.Rand.Int63n(int64(span)))
}

func (o *Orchestrator) randInt(n int) int {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.opts.Rand.Intn(n)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func localOSName() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	default:
		return "Linux"
	}
}

// splitOS splits "Ubuntu 22.04 LTS" into ("Ubuntu 22.04", "LTS").
func splitOS(os string) (string, string) {
	parts := strings.Fields(os)
	if len(parts) <= 2 {
		return os, ""
	}
	return strings.Join(parts[:2], " "), strings.Join(parts[2:], " ")
}

// subnetBase turns "192.168.1.0/24" into "192.168.1.0".
func subnetBase(cidr string) string {
	addr, _, _ := strings.Cut(cidr, "/")
	octets := strings.Split(addr, ".")
	if len(octets) != 4 {
		return addr
	}
	return strings.Join(octets[:3], ".") + ".0"
}
