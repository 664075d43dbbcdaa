// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/dde-session-manager/session/sessionsave"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/stretchr/testify/require"
)

type emittedSignal struct {
	source dbusutil.Implementer
	name   string
	values []interface{}
}

type fakeService struct {
	mu       sync.Mutex
	signals  []emittedSignal
	props    map[string]interface{}
	exported map[dbus.ObjectPath]bool
	onEmit   func(source dbusutil.Implementer, name string, values []interface{})
}

func newFakeService() *fakeService {
	return &fakeService{
		props:    make(map[string]interface{}),
		exported: make(map[dbus.ObjectPath]bool),
	}
}

func (s *fakeService) Export(path dbus.ObjectPath, implementers ...dbusutil.Implementer) error {
	s.mu.Lock()
	s.exported[path] = true
	s.mu.Unlock()
	return nil
}

func (s *fakeService) StopExport(implementer dbusutil.Implementer) error {
	if p, ok := implementer.(interface{ Path() dbus.ObjectPath }); ok {
		s.mu.Lock()
		delete(s.exported, p.Path())
		s.mu.Unlock()
	}
	return nil
}

func (s *fakeService) Emit(v dbusutil.Implementer, name string, values ...interface{}) error {
	s.mu.Lock()
	s.signals = append(s.signals, emittedSignal{source: v, name: name, values: values})
	hook := s.onEmit
	s.mu.Unlock()
	if hook != nil {
		hook(v, name, values)
	}
	return nil
}

func (s *fakeService) EmitPropertyChanged(v dbusutil.Implementer, name string, value interface{}) error {
	s.mu.Lock()
	s.props[name] = value
	s.mu.Unlock()
	return nil
}

func (s *fakeService) GetConnPID(name string) (uint32, error) {
	return 4242, nil
}

func (s *fakeService) setOnEmit(fn func(source dbusutil.Implementer, name string, values []interface{})) {
	s.mu.Lock()
	s.onEmit = fn
	s.mu.Unlock()
}

func (s *fakeService) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sig := range s.signals {
		if sig.name == name {
			n++
		}
	}
	return n
}

func (s *fakeService) isExported(path dbus.ObjectPath) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported[path]
}

func (s *fakeService) prop(name string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props[name]
}

type fakeSystem struct {
	mu            sync.Mutex
	calls         map[string]int
	idle          bool
	inhibitors    map[string]inhibitor.Flag
	canHybrid     bool
	loginSession  bool
	requestFailed func(error)
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		calls:      make(map[string]int),
		inhibitors: make(map[string]inhibitor.Flag),
	}
}

func (s *fakeSystem) record(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *fakeSystem) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeSystem) CanSwitchUser() bool  { return true }
func (s *fakeSystem) CanStop() bool        { return true }
func (s *fakeSystem) CanRestart() bool     { return true }
func (s *fakeSystem) CanSuspend() bool     { return true }
func (s *fakeSystem) CanHibernate() bool   { return false }
func (s *fakeSystem) CanHybridSleep() bool { return s.canHybrid }
func (s *fakeSystem) AttemptStop()         { s.record("AttemptStop") }
func (s *fakeSystem) AttemptRestart()      { s.record("AttemptRestart") }
func (s *fakeSystem) Suspend()             { s.record("Suspend") }
func (s *fakeSystem) Hibernate()           { s.record("Hibernate") }
func (s *fakeSystem) HybridSleep()         { s.record("HybridSleep") }

func (s *fakeSystem) SetSessionIdle(idle bool) {
	s.mu.Lock()
	s.idle = idle
	s.mu.Unlock()
}

func (s *fakeSystem) IsLoginSession() bool       { return s.loginSession }
func (s *fakeSystem) IsLastSessionForUser() bool { return true }

func (s *fakeSystem) AddInhibitor(id string, flags inhibitor.Flag) {
	s.mu.Lock()
	s.inhibitors[id] = flags
	s.mu.Unlock()
}

func (s *fakeSystem) RemoveInhibitor(id string) {
	s.mu.Lock()
	delete(s.inhibitors, id)
	s.mu.Unlock()
}

func (s *fakeSystem) Logout() error {
	s.record("Logout")
	return nil
}

func (s *fakeSystem) ConnectRequestFailed(cb func(err error)) {
	s.mu.Lock()
	s.requestFailed = cb
	s.mu.Unlock()
}

func (s *fakeSystem) Destroy() {}

type inhibitorDialogCall struct {
	action     Action
	inhibitors []*inhibitor.Inhibitor
	respond    func(Response)
}

type fakeDialog struct {
	mu             sync.Mutex
	logoutAnswer   *Response
	shutdownCalls  []Action
	inhibitorCalls []inhibitorDialogCall
	failures       []string
	closed         int
}

func (d *fakeDialog) ShowLogout(respond func(Response)) {
	d.mu.Lock()
	answer := d.logoutAnswer
	d.mu.Unlock()
	if answer != nil {
		respond(*answer)
	}
}

func (d *fakeDialog) ShowShutdown(preferred Action, respond func(Response)) {
	d.mu.Lock()
	d.shutdownCalls = append(d.shutdownCalls, preferred)
	d.mu.Unlock()
	respond(Response{Action: preferred})
}

func (d *fakeDialog) ShowInhibitors(action Action, inhibitors []*inhibitor.Inhibitor, respond func(Response)) {
	d.mu.Lock()
	d.inhibitorCalls = append(d.inhibitorCalls, inhibitorDialogCall{action, inhibitors, respond})
	d.mu.Unlock()
}

func (d *fakeDialog) ShowFailure(appName, reason string) {
	d.mu.Lock()
	d.failures = append(d.failures, appName)
	d.mu.Unlock()
}

func (d *fakeDialog) Close() {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
}

func (d *fakeDialog) lastInhibitorCall() (inhibitorDialogCall, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.inhibitorCalls) == 0 {
		return inhibitorDialogCall{}, false
	}
	return d.inhibitorCalls[len(d.inhibitorCalls)-1], true
}

type fakeSaver struct {
	mu     sync.Mutex
	saves  int
	clears int
	saved  []string
}

func (s *fakeSaver) Save(clients []sessionsave.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, c := range clients {
		s.saved = append(s.saved, c.StartupID())
	}
	return nil
}

func (s *fakeSaver) Clear() error {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	return nil
}

// fakeXSMPConn answers every SaveYourself right away unless silent is set.
type fakeXSMPConn struct {
	mu     sync.Mutex
	client *client.XSMPClient
	silent bool
	calls  []string
}

func (f *fakeXSMPConn) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeXSMPConn) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeXSMPConn) answer() {
	f.mu.Lock()
	c, silent := f.client, f.silent
	f.mu.Unlock()
	if c != nil && !silent {
		c.SaveYourselfDone(true)
	}
}

func (f *fakeXSMPConn) RegisterClientReply(id string) error {
	f.record("RegisterClientReply")
	return nil
}

func (f *fakeXSMPConn) SaveYourself(saveType client.SaveType, shutdown bool, style client.InteractStyle, fast bool) error {
	f.record("SaveYourself")
	f.answer()
	return nil
}

func (f *fakeXSMPConn) SaveYourselfPhase2() error {
	f.record("SaveYourselfPhase2")
	f.answer()
	return nil
}

func (f *fakeXSMPConn) Interact() error {
	f.record("Interact")
	return nil
}

func (f *fakeXSMPConn) SaveComplete() error {
	f.record("SaveComplete")
	return nil
}

func (f *fakeXSMPConn) Die() error {
	f.record("Die")
	return nil
}

func (f *fakeXSMPConn) ShutdownCancelled() error {
	f.record("ShutdownCancelled")
	return nil
}

func (f *fakeXSMPConn) ReturnProperties(props []*client.Prop) error {
	return nil
}

func (f *fakeXSMPConn) Close() error {
	f.record("Close")
	return nil
}

func (f *fakeXSMPConn) Description() string {
	return "fake xsmp connection"
}

type fakeProcess struct {
	pid  int
	exit chan int
	kill chan syscall.Signal
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(sig os.Signal) error {
	select {
	case p.exit <- 0:
	default:
	}
	return nil
}

func (p *fakeProcess) Wait() (int, syscall.Signal, bool, error) {
	select {
	case code := <-p.exit:
		return code, 0, false, nil
	case sig := <-p.kill:
		return -1, sig, true, nil
	}
}

type fakeLauncher struct {
	mu     sync.Mutex
	procs  map[string]*fakeProcess
	starts map[string]int
	next   int
}

func (l *fakeLauncher) Spawn(info *desktopappinfo.DesktopAppInfo, env []string) (app.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.procs == nil {
		l.procs = make(map[string]*fakeProcess)
		l.starts = make(map[string]int)
	}
	l.next++
	p := &fakeProcess{pid: 1000 + l.next, exit: make(chan int, 1), kill: make(chan syscall.Signal, 1)}
	argv := strings.Fields(info.GetCommandline())
	key := argv[len(argv)-1]
	l.procs[key] = p
	l.starts[key]++
	return p, nil
}

func (l *fakeLauncher) startCount(arg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts[arg]
}

// spawned looks a process up by the last word of its command line.
func (l *fakeLauncher) spawned(arg string) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[arg]
}

type testEnv struct {
	m        *Manager
	service  *fakeService
	sys      *fakeSystem
	dialog   *fakeDialog
	saver    *fakeSaver
	launcher *fakeLauncher
	quits    int32
}

func newTestEnv(t *testing.T, settings Settings, opts ...func(*managerOptions)) *testEnv {
	env := &testEnv{
		service:  newFakeService(),
		sys:      newFakeSystem(),
		dialog:   &fakeDialog{},
		saver:    &fakeSaver{},
		launcher: &fakeLauncher{},
	}
	options := managerOptions{
		service:    env.service,
		system:     env.sys,
		config:     &settings,
		dialog:     env.dialog,
		saver:      env.saver,
		appContext: &app.Context{Launcher: env.launcher},
		quit: func() {
			atomic.AddInt32(&env.quits, 1)
		},
		timeouts: timeouts{
			phase:   300 * time.Millisecond,
			query:   50 * time.Millisecond,
			confirm: 300 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	env.m = newManager("deepin", options)
	env.m.loop.start()
	t.Cleanup(env.m.destroy)
	return env
}

func withPhaseTimeout(d time.Duration) func(*managerOptions) {
	return func(o *managerOptions) {
		o.timeouts.phase = d
	}
}

func (e *testEnv) run(fn func()) {
	e.m.loop.call(fn)
}

func (e *testEnv) phase() app.Phase {
	var p app.Phase
	e.run(func() {
		p = e.m.phase
	})
	return p
}

func (e *testEnv) waitPhase(t *testing.T, phase app.Phase) {
	require.Eventually(t, func() bool {
		return e.phase() == phase
	}, 3*time.Second, 10*time.Millisecond, "waiting for phase %s", phase)
}

func (e *testEnv) startRunning(t *testing.T) {
	e.run(e.m.start)
	e.waitPhase(t, app.PhaseRunning)
}

func (e *testEnv) quitCount() int {
	return int(atomic.LoadInt32(&e.quits))
}

func (e *testEnv) connectXSMP(t *testing.T, previousID string) (*client.XSMPClient, *fakeXSMPConn) {
	conn := &fakeXSMPConn{}
	c := e.m.NewXSMPConnection(conn)
	require.NotNil(t, c)
	conn.mu.Lock()
	conn.client = c
	conn.mu.Unlock()
	require.True(t, c.RegisterClientRequest(previousID))
	return c, conn
}

func (e *testEnv) registerDBus(t *testing.T, busName, appID string) *client.DBusClient {
	var (
		path dbus.ObjectPath
		err  error
		c    client.Client
	)
	e.run(func() {
		path, err = e.m.registerClient(busName, 0, appID, "")
		if err == nil {
			c, _ = e.m.clients.Lookup(string(path))
		}
	})
	require.NoError(t, err)
	require.IsType(t, &client.DBusClient{}, c)
	return c.(*client.DBusClient)
}

type endSessionResponder interface {
	EndSessionResponse(sender dbus.Sender, isOk bool, reason string) *dbus.Error
}

func respondDBus(c *client.DBusClient, isOK bool, reason string) {
	for _, impl := range c.Implementers() {
		if r, ok := impl.(endSessionResponder); ok {
			r.EndSessionResponse(dbus.Sender(c.BusName()), isOK, reason)
		}
	}
}
