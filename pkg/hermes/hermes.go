// Package hermes implements BadgeVMS's WifiCtl ("Hermes"): a single
// long-lived service loop that owns the radio and serializes every
// connect/disconnect/scan through a command queue, publishing state
// transitions to callers via reply channels.
//
// Grounded on badgevms/include/badgevms/wifi.h (the status/connection/auth
// enums and WifiStation accessors) and badgevms/drivers/wifi.c for the
// command/state-machine shape. The single-goroutine command-queue idiom is
// the host translation of spec.md §4.8's "single long-lived task owns the
// radio", following pkg/virtualizers.Manager's serialized-operation loop.
package hermes

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
)

// Status is the radio's enable state, wifi_status_t.
type Status int

const (
	Disabled Status = iota
	Enabled
	Ask
)

// ConnectionStatus is the association state machine's public value,
// wifi_connection_status_t extended with the intermediate Connecting state
// spec.md §4.8's diagram requires to model in-flight connects.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	Error
	WrongCredentials
)

// AuthMode mirrors wifi_auth_mode_t.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthOpen
	AuthWEP
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPAWPA2PSK
	AuthWPA2Enterprise
	AuthWPA3PSK
	AuthWPA2WPA3PSK
)

// CipherType mirrors wifi_cipher_type_t.
type CipherType int

const (
	CipherNone CipherType = iota
	CipherWEP40
	CipherWEP104
	CipherTKIP
	CipherCCMP
	CipherTKIPCCMP
	CipherUnknown
)

// PhyMode is the bitmask wifi_connection_mode_t.
type PhyMode int

const (
	Phy11B  PhyMode = 1 << 0
	Phy11G  PhyMode = 1 << 1
	Phy11N  PhyMode = 1 << 2
	PhyLR   PhyMode = 1 << 3
	Phy11A  PhyMode = 1 << 4
	Phy11AC PhyMode = 1 << 5
	Phy11AX PhyMode = 1 << 6
)

// Station is one scan result, wifi_station_handle's fields flattened.
type Station struct {
	BSSID            [6]byte
	SSID             string
	PrimaryChannel   int
	SecondaryChannel int
	RSSI             int
	Auth             AuthMode
	PairwiseCipher   CipherType
	GroupCipher      CipherType
	PhyModes         PhyMode
	WPS              bool
}

const (
	scanInterval    = 60 * time.Second
	maxScanResults  = 20
	maxConnectRetry = 10
	disconnectWait  = 5 * time.Second
	disconnectTries = 5
)

// RadioBackend is the collaborator hiding the actual radio chip, scoped
// out of this specification per spec.md §1 ("the radio chip's firmware").
// A host test or simulator supplies one.
type RadioBackend interface {
	// Associate attempts to join ssid/psk, returning station info and
	// whether credentials were accepted. It may block.
	Associate(ssid, psk string) (Station, bool, error)
	// Disassociate tears down any active association.
	Disassociate() error
	// ScanNetworks performs a live scan, returning up to limit results.
	ScanNetworks(limit int) ([]Station, error)
}

var ErrNoBackend = errors.New("hermes: no radio backend configured")

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdScan
	cmdSetParams
	cmdPing
)

type command struct {
	kind  commandKind
	id    string
	ssid  string
	psk   string
	reply chan Result
}

// Result is what a command's reply channel carries back to the caller.
type Result struct {
	ConnectionStatus ConnectionStatus
	Stations         []Station
	Err              error
}

// Controller is Hermes: the radio-owning service loop. Exactly one
// goroutine (loop) ever mutates status/station/scan state; callers only
// ever observe values published after a command completes, guaranteeing
// spec.md §5's monotonicity property.
type Controller struct {
	log     vklog.Logger
	backend RadioBackend
	queue   chan command

	statusMu         sync.RWMutex
	connectionStatus ConnectionStatus
	station          Station
	lastScan         time.Time
	scanResults      []Station

	stop chan struct{}
	done chan struct{}
}

// New creates a Controller driving backend; call Run to start its loop.
func New(log vklog.Logger, backend RadioBackend) *Controller {
	if log == nil {
		log = &vklog.CLI{}
	}
	return &Controller{
		log:     log,
		backend: backend,
		queue:   make(chan command, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run starts the command-queue goroutine and returns immediately; the
// goroutine exits once Stop is called.
func (c *Controller) Run() {
	go c.loop()
}

// Stop asks the command loop to exit and waits for it.
func (c *Controller) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case cmd := <-c.queue:
			c.handle(cmd)
		}
	}
}

func (c *Controller) publish(status ConnectionStatus, station Station) {
	c.statusMu.Lock()
	c.connectionStatus = status
	c.station = station
	c.statusMu.Unlock()
}

func (c *Controller) handle(cmd command) {
	switch cmd.kind {
	case cmdConnect:
		c.handleConnect(cmd)
	case cmdDisconnect:
		c.handleDisconnect(cmd)
	case cmdScan:
		c.handleScan(cmd)
	case cmdSetParams:
		cmd.reply <- Result{ConnectionStatus: c.GetConnectionStatus()}
	case cmdPing:
		cmd.reply <- Result{}
	}
}

func (c *Controller) handleConnect(cmd command) {
	if c.backend == nil {
		c.publish(Error, Station{})
		cmd.reply <- Result{ConnectionStatus: Error, Err: ErrNoBackend}
		return
	}

	c.publish(Connecting, Station{})

	var lastErr error
	for attempt := 0; attempt < maxConnectRetry; attempt++ {
		station, ok, err := c.backend.Associate(cmd.ssid, cmd.psk)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			c.publish(WrongCredentials, Station{})
			cmd.reply <- Result{ConnectionStatus: WrongCredentials}
			return
		}
		c.publish(Connected, station)
		cmd.reply <- Result{ConnectionStatus: Connected}
		return
	}

	c.publish(Error, Station{})
	cmd.reply <- Result{ConnectionStatus: Error, Err: lastErr}
}

func (c *Controller) handleDisconnect(cmd command) {
	if c.backend == nil {
		c.publish(Disconnected, Station{})
		cmd.reply <- Result{ConnectionStatus: Disconnected}
		return
	}

	var lastErr error
	for attempt := 0; attempt < disconnectTries; attempt++ {
		if err := c.backend.Disassociate(); err != nil {
			lastErr = err
			continue
		}
		c.publish(Disconnected, Station{})
		cmd.reply <- Result{ConnectionStatus: Disconnected}
		return
	}

	c.publish(Error, Station{})
	cmd.reply <- Result{ConnectionStatus: Error, Err: lastErr}
}

func (c *Controller) handleScan(cmd command) {
	c.statusMu.RLock()
	cached := c.scanResults
	hasScanned := !c.lastScan.IsZero()
	withinWindow := hasScanned && time.Since(c.lastScan) < scanInterval
	c.statusMu.RUnlock()

	if withinWindow {
		cmd.reply <- Result{Stations: cached}
		return
	}

	if c.backend == nil {
		cmd.reply <- Result{Err: ErrNoBackend}
		return
	}

	results, err := c.backend.ScanNetworks(maxScanResults)
	if err != nil {
		cmd.reply <- Result{Err: err}
		return
	}
	if len(results) > maxScanResults {
		results = results[:maxScanResults]
	}

	c.statusMu.Lock()
	c.scanResults = results
	c.lastScan = time.Now()
	c.statusMu.Unlock()

	cmd.reply <- Result{Stations: results}
}

func (c *Controller) submit(cmd command) Result {
	cmd.reply = make(chan Result, 1)
	cmd.id = uuid.NewString()
	c.queue <- cmd
	return <-cmd.reply
}

// Connect blocks until Connected, WrongCredentials, or an Error after
// retrying, per spec.md §6.
func (c *Controller) Connect(ssid, psk string) ConnectionStatus {
	res := c.submit(command{kind: cmdConnect, ssid: ssid, psk: psk})
	return res.ConnectionStatus
}

// Disconnect calls the backend's Disassociate up to disconnectTries times
// and publishes Disconnected on the first success, or Error if every
// attempt fails. Attempts follow each other immediately; there is no
// per-attempt confirmation wait or timeout around Disassociate.
func (c *Controller) Disconnect() ConnectionStatus {
	res := c.submit(command{kind: cmdDisconnect})
	return res.ConnectionStatus
}

// Scan returns cached results if the last scan is within the rate-limit
// window, otherwise performs a live scan capped at maxScanResults.
func (c *Controller) Scan() ([]Station, error) {
	res := c.submit(command{kind: cmdScan})
	return res.Stations, res.Err
}

// SetConnectionParameters is a no-op command round-trip used by callers
// that only want to confirm Hermes is alive and processing in order.
func (c *Controller) SetConnectionParameters(ssid, psk string) {
	c.submit(command{kind: cmdSetParams, ssid: ssid, psk: psk})
}

// Ping is a liveness check, not a network call: it round trips a no-op
// command through the queue so a caller can confirm the service loop is
// still draining commands (radio wedged, goroutine panicked) before
// relying on Connect/Scan. The hub reachability check that badgehub's
// `GET /api/v3/ping` endpoint (spec.md §6) backs is a separate operation,
// ota.Updater.Ping, since it talks to Badgehub rather than the radio.
func (c *Controller) Ping() {
	c.submit(command{kind: cmdPing})
}

// GetConnectionStatus returns the most recently published connection
// status without going through the command queue.
func (c *Controller) GetConnectionStatus() ConnectionStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.connectionStatus
}

// GetConnectionStation returns the most recently published association,
// if any.
func (c *Controller) GetConnectionStation() Station {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.station
}
