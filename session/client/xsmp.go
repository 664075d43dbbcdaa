// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
	"github.com/linuxdeepin/go-lib/gettext"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/procfs"
	"github.com/linuxdeepin/go-lib/shell"
)

// XSMP property names and types.
const (
	PropProgram          = "Program"
	PropRestartCommand   = "RestartCommand"
	PropDiscardCommand   = "DiscardCommand"
	PropProcessID        = "ProcessID"
	PropRestartStyleHint = "RestartStyleHint"
	PropCloneCommand     = "CloneCommand"
	PropUserID           = "UserID"
	PropCurrentDirectory = "CurrentDirectory"
	PropEnvironment      = "Environment"
	PropDesktopFile      = "_GSM_DesktopFile"

	PropTypeCard8       = "CARD8"
	PropTypeArray8      = "ARRAY8"
	PropTypeListOfArray = "LISTofARRAY8"
)

type SaveType int

const (
	SaveGlobal SaveType = iota
	SaveLocal
	SaveBoth

	saveNone SaveType = -1
)

type InteractStyle int

const (
	InteractStyleNone InteractStyle = iota
	InteractStyleErrors
	InteractStyleAny
)

// Keys written into saved desktop entries.
const (
	KeyStartupID   = "X-GNOME-Autostart-startup-id"
	KeyDiscardExec = "X-GNOME-Autostart-discard-exec"

	defaultXSMPIcon = "system-run"
)

type Prop struct {
	Name string
	Type string
	Vals [][]byte
}

func (p *Prop) firstVal() string {
	if len(p.Vals) == 0 {
		return ""
	}
	return string(p.Vals[0])
}

// Conn is one XSMP connection as seen from the session manager.
type Conn interface {
	RegisterClientReply(id string) error
	SaveYourself(saveType SaveType, shutdown bool, style InteractStyle, fast bool) error
	SaveYourselfPhase2() error
	Interact() error
	SaveComplete() error
	Die() error
	ShutdownCancelled() error
	ReturnProperties(props []*Prop) error
	Close() error
	Description() string
}

// XSMPHandlers are the requests an XSMP client makes of the manager.
type XSMPHandlers struct {
	// RegisterRequest returns the id to hand out, or an empty string to
	// reject the previous id.
	RegisterRequest func(c *XSMPClient, previousID string) string
	LogoutRequest   func(c *XSMPClient, showDialog bool)
}

type XSMPClient struct {
	base

	conn          Conn
	xsmpHandlers  XSMPHandlers
	props         []*Prop
	currentSave   SaveType
	nextSave      SaveType
	nextSaveAllow bool
	// last known values, used once the connection is gone
	lastRestartHint RestartStyle
}

func NewXSMPClient(conn Conn) *XSMPClient {
	c := &XSMPClient{
		base:            newBase("", ""),
		conn:            conn,
		currentSave:     saveNone,
		nextSave:        saveNone,
		lastRestartHint: RestartIfRunning,
	}
	logger.Debugf("new xsmp client %s (%s)", c.path, conn.Description())
	return c
}

func (c *XSMPClient) SetXSMPHandlers(h XSMPHandlers) {
	c.mu.Lock()
	c.xsmpHandlers = h
	c.mu.Unlock()
}

func (c *XSMPClient) description() string {
	if c.conn == nil {
		return string(c.path)
	}
	return c.conn.Description()
}

func (c *XSMPClient) findProp(name string) (*Prop, int) {
	for idx, p := range c.props {
		if p.Name == name {
			return p, idx
		}
	}
	return nil, -1
}

func (c *XSMPClient) findTypedProp(name, typ string) *Prop {
	p, _ := c.findProp(name)
	if p == nil || p.Type != typ || len(p.Vals) == 0 {
		return nil
	}
	return p
}

func (c *XSMPClient) deleteProp(name string) {
	_, idx := c.findProp(name)
	if idx < 0 {
		return
	}
	c.props = append(c.props[:idx], c.props[idx+1:]...)
}

func (c *XSMPClient) getConn() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotRegistered
	}
	return c.conn, nil
}

// doSaveYourself must be called with c.mu held. It returns the SaveYourself
// to send, if any.
func (c *XSMPClient) doSaveYourself(saveType SaveType, allowInteract bool) func() {
	if c.nextSave != saveNone {
		logger.Debugf("skip redundant SaveYourself for %s", c.description())
		return nil
	}
	if c.currentSave != saveNone {
		logger.Debugf("queue SaveYourself for %s", c.description())
		c.nextSave = saveType
		c.nextSaveAllow = allowInteract
		return nil
	}

	c.currentSave = saveType
	c.nextSave = saveNone
	c.nextSaveAllow = false

	conn := c.conn
	return func() {
		var err error
		switch {
		case saveType == SaveLocal:
			err = conn.SaveYourself(SaveLocal, false, InteractStyleNone, false)
		case !allowInteract:
			err = conn.SaveYourself(saveType, true, InteractStyleNone, true)
		default:
			err = conn.SaveYourself(saveType, true, InteractStyleAny, false)
		}
		if err != nil {
			logger.Warningf("SaveYourself to %s failed: %v", conn.Description(), err)
		}
	}
}

func runSend(send func()) {
	if send != nil {
		send()
	}
}

func (c *XSMPClient) QueryEndSession(flags EndSessionFlag) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotRegistered
	}
	send := c.doSaveYourself(SaveGlobal, !flags.Has(EndSessionFlagForceful))
	c.mu.Unlock()
	runSend(send)
	return nil
}

func (c *XSMPClient) EndSession(flags EndSessionFlag) error {
	conn, err := c.getConn()
	if err != nil {
		return err
	}
	if flags.Has(EndSessionFlagLast) {
		logger.Debugf("SaveYourselfPhase2 to %s", conn.Description())
		return conn.SaveYourselfPhase2()
	}

	saveType := SaveGlobal
	if flags.Has(EndSessionFlagSave) {
		saveType = SaveBoth
	}
	c.mu.Lock()
	send := c.doSaveYourself(saveType, false)
	c.mu.Unlock()
	runSend(send)
	return nil
}

func (c *XSMPClient) CancelEndSession() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotRegistered
	}
	c.currentSave = saveNone
	c.nextSave = saveNone
	c.nextSaveAllow = false
	c.mu.Unlock()

	return conn.ShutdownCancelled()
}

func (c *XSMPClient) Stop() error {
	conn, err := c.getConn()
	if err != nil {
		return err
	}
	logger.Debugf("Die to %s", conn.Description())
	return conn.Die()
}

func (c *XSMPClient) RestartStyleHint() RestartStyle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return c.lastRestartHint
	}
	return c.restartStyleHintLocked()
}

func (c *XSMPClient) restartStyleHintLocked() RestartStyle {
	hint := RestartIfRunning
	p := c.findTypedProp(PropRestartStyleHint, PropTypeCard8)
	if p != nil && len(p.Vals[0]) > 0 {
		switch v := RestartStyle(p.Vals[0][0]); v {
		case RestartNever, RestartIfRunning, RestartAnyway, RestartImmediately:
			hint = v
		}
	}
	c.lastRestartHint = hint
	return hint
}

func (c *XSMPClient) UnixProcessID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pidLocked()
}

func (c *XSMPClient) pidLocked() uint32 {
	p := c.findTypedProp(PropProcessID, PropTypeArray8)
	if p == nil {
		return 0
	}
	pid, err := strconv.ParseUint(p.firstVal(), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(pid)
}

func (c *XSMPClient) AppName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, _ := c.findProp(PropProgram)
	if p == nil {
		return ""
	}
	return propToCommand(p)
}

// AppID returns the app id set by the manager, falling back to the
// basename of the desktop entry matching this client.
func (c *XSMPClient) AppID() string {
	if id := c.rawAppID(); id != "" {
		return id
	}
	c.mu.Lock()
	file := c.desktopFileLocked()
	c.mu.Unlock()
	if file == "" {
		return ""
	}
	return filepath.Base(file)
}

func (c *XSMPClient) desktopFileLocked() string {
	if p, _ := c.findProp(PropDesktopFile); p != nil {
		u, err := url.Parse(p.firstVal())
		if err == nil && u.Scheme == "file" {
			return u.Path
		}
		return p.firstVal()
	}

	if p, _ := c.findProp(PropProgram); p != nil {
		file := sessiondirs.FindDesktopFileForAppName(p.firstVal(), true, false)
		if file != "" {
			return file
		}
	}

	pid := c.pidLocked()
	if pid == 0 {
		return ""
	}
	exe, err := procfs.Process(pid).Exe()
	if err != nil {
		return ""
	}
	return sessiondirs.FindDesktopFileForAppName(filepath.Base(exe), true, false)
}

func (c *XSMPClient) Save() (*keyfile.KeyFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hint := c.lastRestartHint
	if c.conn != nil {
		hint = c.restartStyleHintLocked()
	}
	if hint == RestartNever {
		return nil, nil
	}
	restart := c.findTypedProp(PropRestartCommand, PropTypeListOfArray)
	if restart == nil {
		return nil, nil
	}

	kf := keyfile.NewKeyFile()
	if file := c.desktopFileLocked(); file != "" {
		if err := kf.LoadFromFile(file); err != nil {
			return nil, err
		}
	} else {
		c.fillDesktopKeys(kf)
	}

	kf.SetString(desktopappinfo.MainSection, KeyStartupID, c.startupID)
	kf.SetString(desktopappinfo.MainSection, "Exec", propToCommand(restart))
	if discard := c.findTypedProp(PropDiscardCommand, PropTypeListOfArray); discard != nil {
		kf.SetString(desktopappinfo.MainSection, KeyDiscardExec, propToCommand(discard))
	}
	return kf, nil
}

func (c *XSMPClient) fillDesktopKeys(kf *keyfile.KeyFile) {
	name := gettext.Tr("Remembered Application")
	if p, _ := c.findProp(PropProgram); p != nil {
		name = p.firstVal()
	}
	const section = desktopappinfo.MainSection
	kf.SetString(section, desktopappinfo.KeyName, name)
	kf.SetString(section, desktopappinfo.KeyComment,
		"Client "+c.startupID+" which was automatically saved")
	kf.SetString(section, "Icon", defaultXSMPIcon)
	kf.SetString(section, "Type", "Application")
	kf.SetValue(section, "StartupNotify", "true")
}

// Disconnected drops the transport. The restart hint is cached first so
// it stays answerable afterwards.
func (c *XSMPClient) Disconnected() {
	c.mu.Lock()
	if c.conn != nil {
		c.restartStyleHintLocked()
		c.conn = nil
	}
	c.mu.Unlock()
	c.emitDisconnected(c)
}

func (c *XSMPClient) RegisterClientRequest(previousID string) bool {
	c.mu.Lock()
	h := c.xsmpHandlers.RegisterRequest
	conn := c.conn
	c.mu.Unlock()
	if h == nil || conn == nil {
		logger.Warningf("RegisterClient from %s not handled", c.description())
		return false
	}

	id := h(c, previousID)
	if id == "" {
		logger.Debugf("RegisterClient from %s rejected, invalid previous id %q",
			c.description(), previousID)
		return false
	}

	c.setStartupID(id)
	if err := conn.RegisterClientReply(id); err != nil {
		logger.Warning("RegisterClientReply failed:", err)
		return false
	}

	if previousID == "" {
		c.mu.Lock()
		c.currentSave = SaveLocal
		c.mu.Unlock()
		err := conn.SaveYourself(SaveLocal, false, InteractStyleNone, false)
		if err != nil {
			logger.Warning("initial SaveYourself failed:", err)
		}
	}

	c.SetStatus(StatusRegistered)
	return true
}

func (c *XSMPClient) SetProperties(props []*Prop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range props {
		c.deleteProp(p.Name)
		c.props = append(c.props, p)
		logger.Debugf("%s: set property %s (%s)", c.description(), p.Name, p.Type)
	}
}

func (c *XSMPClient) DeleteProperties(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.deleteProp(name)
	}
}

func (c *XSMPClient) GetProperties() {
	c.mu.Lock()
	conn := c.conn
	props := make([]*Prop, len(c.props))
	copy(props, c.props)
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.ReturnProperties(props); err != nil {
		logger.Warning(err)
	}
}

func (c *XSMPClient) SaveYourselfRequest(saveType SaveType, shutdown bool,
	style InteractStyle, fast, global bool) {
	logger.Debugf("%s: SaveYourselfRequest(type=%d, shutdown=%v, style=%d, fast=%v, global=%v)",
		c.description(), saveType, shutdown, style, fast, global)

	switch {
	case shutdown && global:
		c.mu.Lock()
		h := c.xsmpHandlers.LogoutRequest
		c.mu.Unlock()
		if h != nil {
			h(c, !fast)
		}
	case !shutdown && !global:
		c.mu.Lock()
		if c.conn == nil {
			c.mu.Unlock()
			return
		}
		send := c.doSaveYourself(SaveLocal, true)
		c.mu.Unlock()
		runSend(send)
	default:
		logger.Debug("ignore SaveYourselfRequest")
	}
}

func (c *XSMPClient) SaveYourselfPhase2Request() {
	c.mu.Lock()
	c.currentSave = saveNone
	c.mu.Unlock()
	c.emitEndSessionResponse(c, true, true, false, "")
}

func (c *XSMPClient) InteractRequest() {
	c.emitEndSessionResponse(c, false, false, false,
		gettext.Tr("This program is blocking logout."))

	conn, err := c.getConn()
	if err != nil {
		return
	}
	if err := conn.Interact(); err != nil {
		logger.Warning(err)
	}
}

func (c *XSMPClient) InteractDone(cancelShutdown bool) {
	c.emitEndSessionResponse(c, true, false, cancelShutdown, "")
}

func (c *XSMPClient) SaveYourselfDone(success bool) {
	logger.Debugf("%s: SaveYourselfDone(success=%v)", c.description(), success)

	c.mu.Lock()
	conn := c.conn
	completed := false
	if c.currentSave != saveNone {
		c.currentSave = saveNone
		completed = true
	}
	c.mu.Unlock()

	if completed && conn != nil {
		if err := conn.SaveComplete(); err != nil {
			logger.Warning(err)
		}
	}

	c.emitEndSessionResponse(c, true, false, false, "")

	c.mu.Lock()
	var send func()
	if c.nextSave != saveNone && c.conn != nil {
		saveType, allow := c.nextSave, c.nextSaveAllow
		c.nextSave = saveNone
		c.nextSaveAllow = false
		send = c.doSaveYourself(saveType, allow)
	}
	c.mu.Unlock()
	runSend(send)
}

func (c *XSMPClient) CloseConnection(reasons []string) {
	for _, r := range reasons {
		logger.Debugf("%s: close reason %q", c.description(), r)
	}
	c.SetStatus(StatusFinished)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Debug(err)
		}
	}
	c.Disconnected()
}

// propToCommand joins the values of a LISTofARRAY8 property into a shell
// command line.
func propToCommand(p *Prop) string {
	args := make([]string, 0, len(p.Vals))
	for _, val := range p.Vals {
		args = append(args, shell.Encode(string(val)))
	}
	return strings.Join(args, " ")
}
