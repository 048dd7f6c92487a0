/*
Copyright (c) YugabyteDB, Inc.

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
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pgshift/pgshift/src/config"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/utils"
)

type MyFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

func (mf *MyFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	fileName := filepath.Base(entry.Caller.File)
	// Example log line:
	// 2022-03-23 12:16:42 INFO main.go:27 Logging initialised.
	msg := fmt.Sprintf("%s %s %s:%d %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), level,
		fileName, entry.Caller.Line, entry.Message)
	return []byte(msg), nil
}

func InitLogging(logDir string, cmdName string) {
	logFileName := filepath.Join(logDir, constants.LOGS_DIR, fmt.Sprintf("pgshift-%s.log", cmdName))

	// logRotator creates the logs dir and the file when they do not exist.
	logRotator := &lumberjack.Logger{
		Filename:   logFileName,
		MaxSize:    200, // 200 MB log size before rotation
		MaxBackups: 10,  // Allow upto 10 logs at once before deleting oldest logs.
	}
	log.SetOutput(logRotator)

	log.SetLevel(config.Level())
	log.SetReportCaller(true)
	log.SetFormatter(&MyFormatter{})
	log.Info("Logging initialised.")
	log.Infof("Args: %v", redactedArgs(os.Args))
	log.Infof("\n%s", getVersionInfo())
}

// redactedArgs masks the password of every connection URI on the command line,
// whether passed as --flag=uri or as a separate argument.
func redactedArgs(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		idx := strings.Index(arg, "postgres")
		if idx < 0 || !strings.Contains(arg[idx:], "://") {
			continue
		}
		result[i] = arg[:idx] + utils.GetRedactedURLs([]string{arg[idx:]})[0]
	}
	return result
}
