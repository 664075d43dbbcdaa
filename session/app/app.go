// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package app loads autostart desktop entries and starts, stops and
// restarts the applications they describe.
package app

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/strv"
	"github.com/linuxdeepin/go-lib/utils"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("dde-session-manager/app")

// desktop entry keys
const (
	KeyEnabled     = "X-GNOME-Autostart-enabled"
	KeyPhase       = "X-GNOME-Autostart-Phase"
	KeyProvides    = "X-GNOME-Provides"
	KeyStartupID   = "X-GNOME-Autostart-startup-id"
	KeyAutoRestart = "X-GNOME-AutoRestart"
	KeyDBusName    = "X-GNOME-DBus-Name"
	KeyDBusPath    = "X-GNOME-DBus-Path"
	KeyDBusArgs    = "X-GNOME-DBus-Start-Arguments"
	KeyDiscardExec = "X-GNOME-Autostart-discard-exec"
	KeyDelay       = "X-GNOME-Autostart-Delay"
	KeyCondition   = "AutostartCondition"

	keyHidden     = "Hidden"
	keyOnlyShowIn = "OnlyShowIn"
	keyNotShowIn  = "NotShowIn"
	keyTryExec    = "TryExec"
)

const restartRateLimit = 60 * time.Second

type launchType int

const (
	launchSpawn launchType = iota
	launchActivate
)

type Handlers struct {
	Exited           func(a *App, code int)
	Died             func(a *App, sig syscall.Signal)
	ConditionChanged func(a *App, condition bool)
}

// Context carries what apps need from the session around them.
type Context struct {
	SessionName     func() string
	IsBlacklisted   func(file string) bool
	CurrentDesktops []string
	Launcher        Launcher
	Activator       Activator
	Settings        SettingsSource
	Now             func() time.Time
}

type App struct {
	mu sync.Mutex

	id        string
	appID     string
	startupID string
	phase     Phase
	info      *desktopappinfo.DesktopAppInfo
	ctx       *Context

	launch      launchType
	dbusName    string
	autorestart bool
	delay       int

	conditionString string
	condition       bool
	watcher         conditionWatcher

	sessionProvides []string

	proc        Process
	pid         int
	lastRestart time.Time
	registered  bool
	handlers    Handlers
}

// New loads the desktop entry at file.
func New(file string, ctx *Context) (*App, error) {
	info, err := desktopappinfo.NewDesktopAppInfoFromFile(file)
	if err != nil {
		return nil, xerrors.Errorf("load %s: %w", file, err)
	}
	if ctx == nil {
		ctx = &Context{}
	}
	a := &App{
		id:    file,
		appID: filepath.Base(file),
		info:  info,
		ctx:   ctx,
		pid:   -1,
		delay: -1,
	}
	a.load()
	return a, nil
}

func (a *App) getString(key string) string {
	v, _ := a.info.GetString(desktopappinfo.MainSection, key)
	return v
}

func (a *App) hasKey(key string) bool {
	_, err := a.info.GetString(desktopappinfo.MainSection, key)
	return err == nil
}

func (a *App) getBool(key string) bool {
	v, _ := a.info.GetBool(desktopappinfo.MainSection, key)
	return v
}

func (a *App) load() {
	a.phase = PhaseApplication
	if phase := a.getString(KeyPhase); phase != "" {
		a.phase = ParsePhase(phase)
	}

	a.dbusName = a.getString(KeyDBusName)
	if a.dbusName != "" {
		a.launch = launchActivate
		a.startupID = a.dbusName
	} else {
		a.launch = launchSpawn
		a.startupID = a.getString(KeyStartupID)
		if a.startupID == "" {
			a.startupID = "10" + strings.ReplaceAll(utils.GenUuid(), "-", "")
		}
	}

	a.autorestart = a.getBool(KeyAutoRestart)
	a.conditionString = a.getString(KeyCondition)

	if a.phase == PhaseApplication && a.hasKey(KeyDelay) {
		delay, err := strconv.Atoi(strings.TrimSpace(a.getString(KeyDelay)))
		if err == nil && delay >= 0 {
			a.delay = delay
		} else {
			logger.Warningf("invalid autostart delay for %s", a.appID)
		}
	}

	a.setupConditionMonitor()
}

func (a *App) SetHandlers(h Handlers) {
	a.mu.Lock()
	a.handlers = h
	a.mu.Unlock()
}

func (a *App) getHandlers() Handlers {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers
}

// ID is the desktop entry path.
func (a *App) ID() string {
	return a.id
}

// AppID is the desktop entry basename.
func (a *App) AppID() string {
	return a.appID
}

func (a *App) StartupID() string {
	return a.startupID
}

func (a *App) Phase() Phase {
	return a.phase
}

func (a *App) AutoRestart() bool {
	return a.autorestart
}

// AutostartDelay is -1 when no delay is set.
func (a *App) AutostartDelay() int {
	return a.delay
}

func (a *App) sessionName() string {
	if a.ctx.SessionName == nil {
		return ""
	}
	return a.ctx.SessionName()
}

func (a *App) now() time.Time {
	if a.ctx.Now != nil {
		return a.ctx.Now()
	}
	return time.Now()
}

// IsDisabled reports whether the app is disabled regardless of its
// autostart condition.
func (a *App) IsDisabled() bool {
	if a.ctx.IsBlacklisted != nil && a.ctx.IsBlacklisted(a.id) {
		logger.Debugf("app %s is blacklisted", a.appID)
		return true
	}
	if a.hasKey(KeyEnabled) && !a.getBool(KeyEnabled) {
		logger.Debugf("app %s is disabled by %s", a.appID, KeyEnabled)
		return true
	}
	if a.getBool(keyHidden) {
		logger.Debugf("app %s is disabled by Hidden", a.appID)
		return true
	}
	if !a.canLaunchIn(a.ctx.CurrentDesktops) {
		logger.Debugf("app %s not installed or not for %v", a.appID, a.ctx.CurrentDesktops)
		return true
	}
	return false
}

func (a *App) canLaunchIn(desktops []string) bool {
	if len(desktops) != 0 {
		onlyShowIn, _ := a.info.GetStringList(desktopappinfo.MainSection, keyOnlyShowIn)
		if len(onlyShowIn) != 0 && !containsAny(onlyShowIn, desktops) {
			return false
		}
		notShowIn, _ := a.info.GetStringList(desktopappinfo.MainSection, keyNotShowIn)
		if containsAny(notShowIn, desktops) {
			return false
		}
	}
	if tryExec := a.getString(keyTryExec); tryExec != "" {
		_, err := exec.LookPath(tryExec)
		return err == nil
	}
	return true
}

func containsAny(list, items []string) bool {
	for _, item := range items {
		if strv.Strv(list).Contains(item) {
			return true
		}
	}
	return false
}

// IsConditionallyDisabled evaluates the autostart condition and primes
// the cached value.
func (a *App) IsConditionallyDisabled() bool {
	if a.conditionString == "" {
		return false
	}
	kind, key := parseCondition(a.conditionString)
	if kind == conditionUnknown {
		return true
	}
	cond := a.evalCondition(kind, key)
	a.mu.Lock()
	a.condition = cond
	a.mu.Unlock()
	return !cond
}

func (a *App) HasAutostartCondition(condition string) bool {
	return a.conditionString != "" && a.conditionString == condition
}

func (a *App) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pid != -1
}

func (a *App) Pid() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pid
}

func (a *App) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

func (a *App) SetRegistered(registered bool) {
	a.mu.Lock()
	a.registered = registered
	a.mu.Unlock()
}

func (a *App) AddProvides(service string) {
	a.mu.Lock()
	a.sessionProvides = append([]string{service}, a.sessionProvides...)
	a.mu.Unlock()
}

func (a *App) GetProvides() []string {
	provides, _ := a.info.GetStringList(desktopappinfo.MainSection, KeyProvides)
	a.mu.Lock()
	defer a.mu.Unlock()
	result := append([]string(nil), provides...)
	return append(result, a.sessionProvides...)
}

func (a *App) Provides(service string) bool {
	return strv.Strv(a.GetProvides()).Contains(service)
}

// DiscardCommand is set for entries loaded from a saved session.
func (a *App) DiscardCommand() string {
	return a.getString(KeyDiscardExec)
}

func (a *App) Start() error {
	switch a.launch {
	case launchActivate:
		return a.startActivate()
	default:
		return a.startSpawn()
	}
}

func (a *App) startSpawn() error {
	if a.info.GetCommandline() == "" {
		return startFailure(a.appID, "empty Exec")
	}
	launcher := a.ctx.Launcher
	if launcher == nil {
		launcher = execLauncher{}
	}

	logger.Debugf("starting %s: command=%s startup-id=%s", a.appID, a.info.GetCommandline(), a.startupID)
	proc, err := launcher.Spawn(a.info, []string{"DESKTOP_AUTOSTART_ID=" + a.startupID})
	if err != nil {
		return startFailure(a.appID, "spawn: %w", err)
	}

	a.mu.Lock()
	a.proc = proc
	a.pid = proc.Pid()
	a.mu.Unlock()
	logger.Debugf("started %s pid:%d", a.appID, proc.Pid())

	go a.watchExit(proc)
	return nil
}

func (a *App) watchExit(proc Process) {
	code, sig, signaled, err := proc.Wait()
	if err != nil {
		logger.Warningf("wait for %s: %v", a.appID, err)
	}

	a.mu.Lock()
	if a.proc == proc {
		a.proc = nil
		a.pid = -1
	}
	a.mu.Unlock()

	h := a.getHandlers()
	if signaled {
		logger.Debugf("app %s (pid:%d) died by signal %d", a.appID, proc.Pid(), sig)
		if h.Died != nil {
			h.Died(a, sig)
		}
		return
	}
	logger.Debugf("app %s (pid:%d) exited with status %d", a.appID, proc.Pid(), code)
	if h.Exited != nil {
		h.Exited(a, code)
	}
}

func (a *App) startActivate() error {
	if a.ctx.Activator == nil {
		return startFailure(a.appID, "no bus activator")
	}
	path := dbus.ObjectPath(a.getString(KeyDBusPath))
	if path == "" {
		path = "/"
	}
	err := a.ctx.Activator.Activate(a.dbusName, path, a.getString(KeyDBusArgs))
	if err != nil {
		return startFailure(a.appID, "activate %s: %w", a.dbusName, err)
	}
	return nil
}

func (a *App) Stop() error {
	if a.launch == launchActivate {
		return nil
	}
	a.mu.Lock()
	proc := a.proc
	a.mu.Unlock()
	if proc == nil {
		return &StopFailure{AppID: a.appID, Err: ErrNotRunning}
	}
	logger.Debugf("sending SIGTERM to %s (pid:%d)", a.appID, proc.Pid())
	err := proc.Signal(syscall.SIGTERM)
	if err != nil {
		if err == os.ErrProcessDone {
			logger.Warningf("child process %d was already dead", proc.Pid())
		}
		return &StopFailure{AppID: a.appID, Err: err}
	}
	return nil
}

// Restart stops and starts the app again, at most once per minute.
func (a *App) Restart() error {
	now := a.now()
	a.mu.Lock()
	if !a.lastRestart.IsZero() && now.Sub(a.lastRestart) < restartRateLimit {
		a.mu.Unlock()
		return ErrRestartLimit
	}
	a.lastRestart = now
	a.mu.Unlock()

	if err := a.Stop(); err != nil {
		logger.Debugf("couldn't stop %s: %v", a.appID, err)
	}
	return a.Start()
}

// Dispose stops condition monitoring.
func (a *App) Dispose() {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if w != nil {
		w.stop()
	}
}

// Condition is the last evaluated autostart condition.
func (a *App) Condition() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.condition
}
