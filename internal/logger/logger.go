package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
)

var (
	isDebug = false

	CritColor    = color.RGB(255, 0, 0).SprintFunc()
	DebugColor   = color.RGB(255, 165, 0).SprintFunc()
	WarningColor = color.RGB(255, 255, 0).SprintFunc()
	EventColor   = color.RGB(0, 255, 0).SprintFunc()
)

// InitLogger настраивает глобальный логгер. Если dir не пустой,
// логи дублируются в файл <dir>/<дата>.log.
func InitLogger(debug bool, dir string) *os.File {
	isDebug = debug

	log.SetPrefix("[BOT] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)

	if dir == "" {
		return nil
	}

	fileName := fmt.Sprintf("%s/%s.log", dir, time.Now().Format("2006-01-02"))

	logFile, err := os.OpenFile(fileName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		Warning("Ошибка связанная с файлом записи логов, в данный момент логи не сохраняются:", err)
		return nil
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)

	return logFile
}

func Info(v ...interface{}) {
	log.Print("[INFO] ", fmt.Sprintln(v...))
}

func Event(v ...interface{}) {
	log.Print(EventColor("[EVENT] ", fmt.Sprintln(v...)))
}

func Warning(v ...interface{}) {
	log.Print(WarningColor("[WARNING] ", fmt.Sprintln(v...)))
}

func Debug(v ...interface{}) {
	if isDebug {
		message := new(bytes.Buffer)

		for _, str := range v {
			v, ok := str.(string)
			if ok {
				_, _ = fmt.Fprintf(message, "%s ", v)
			} else {
				s, _ := json.MarshalIndent(str, "", " ")
				_, _ = fmt.Fprintf(message, "%s ", string(s))
			}
		}

		log.Print(DebugColor("[DEBUG] ", message))
	}
}

func Crit(v ...interface{}) {
	log.Printf(CritColor("Critical error: %s"), v)
	time.Sleep(5 * time.Second)
	os.Exit(1)
}
