// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/dde-session-manager/loader"
	"github.com/linuxdeepin/dde-session-manager/sessionmanager"
	_ "github.com/linuxdeepin/dde-session-manager/sessionwatcher"
	"github.com/linuxdeepin/go-lib/dbusutil"
	. "github.com/linuxdeepin/go-lib/gettext"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/utils"
)

var logger = log.NewLogger("dde-session-manager")

var _options struct {
	verbose   bool
	logLevel  string
	session   string
	autostart string
	list      string
	enable    string
	disable   string
}

func toLogLevel(name string) (log.Priority, error) {
	name = strings.ToLower(name)
	logLevel := log.LevelInfo
	var err error
	switch name {
	case "", "info":
		logLevel = log.LevelInfo
	case "error":
		logLevel = log.LevelError
	case "warn":
		logLevel = log.LevelWarning
	case "debug":
		logLevel = log.LevelDebug
	case "no":
		logLevel = log.LevelDisable
	default:
		err = fmt.Errorf("%s is not support", name)
	}
	return logLevel, err
}

// splitList splits a comma separated flag value, empty items are dropped.
func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func init() {
	// -v | -verbose
	const verboseUsage = "Show much more message, shorthand for --loglevel debug."
	flag.BoolVar(&_options.verbose, "v", false, verboseUsage)
	flag.BoolVar(&_options.verbose, "verbose", false, verboseUsage)

	// -l | -loglevel
	const logLevelUsage = "Set log level, possible value is error/warn/info/debug/no, info is default"
	flag.StringVar(&_options.logLevel, "l", "", logLevelUsage)
	flag.StringVar(&_options.logLevel, "loglevel", "", logLevelUsage)

	flag.StringVar(&_options.session, "session", "",
		"Name of the session definition to load, deepin is default.")
	flag.StringVar(&_options.autostart, "autostart", "",
		"Comma separated directories to read autostart entries from, replacing the standard ones.")

	// -list
	flag.StringVar(&_options.list, "list", "",
		"List all the modules or the dependencies of one module. The argument can be all or the name of the module.")
	flag.StringVar(&_options.enable, "enable", "", "Enable modules and their dependencies.")
	flag.StringVar(&_options.disable, "disable", "", "Disable modules.")
}

func main() {
	logger.SetLogLevel(log.LevelInfo)
	flag.Parse()
	InitI18n()
	Textdomain("dde-session-manager")

	if _options.verbose {
		_options.logLevel = "debug"
	}
	logLevel, err := toLogLevel(_options.logLevel)
	if err != nil {
		logger.Warning("failed to parse loglevel:", err)
		os.Exit(1)
	}

	if _options.list != "" {
		err = listModule(_options.list)
		if err != nil {
			logger.Warning(err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	usr, err := user.Current()
	if err == nil {
		_ = os.Chdir(usr.HomeDir)
	}

	sessionmanager.SetSessionName(_options.session)
	if dirs := splitList(_options.autostart); len(dirs) > 0 {
		sessiondirs.SetAutostartDirs(dirs)
	}
	sessionmanager.SetQuitFunc(quit)

	service, err := dbusutil.NewSessionService()
	if err != nil {
		logger.Fatal(err)
	}
	loader.SetService(service)

	if _options.logLevel == "" &&
		(utils.IsEnvExists(log.DebugLevelEnv) || utils.IsEnvExists(log.DebugMatchEnv)) {
		logger.Info("Log level is none and debug env exists, so do not call loader.SetLogLevel")
	} else {
		logger.Info("App log level:", _options.logLevel)
		loader.SetLogLevel(logLevel)
	}

	// Ensure each module and mainloop in the same thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	enabling := splitList(_options.enable)
	if len(enabling) == 0 {
		enabling = defaultModules
	}
	err = loader.EnableModules(enabling, splitList(_options.disable), loader.EnableFlagNone)
	if err != nil {
		logger.Warning(err)
		os.Exit(1)
	}

	runMainLoop()
}
