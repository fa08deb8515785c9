package logbroker

import (
	"fmt"
	"strings"
)

// Level is a log severity. Values are stable across the wire protocol
// and the config file format; never renumber them.
type Level uint8

const (
	NOTSET    Level = 0
	TRACE     Level = 5
	DEBUG     Level = 10
	INFO      Level = 20
	SUCCESS   Level = 25
	WARNING   Level = 30
	ERROR     Level = 40
	FATAL     Level = 50
	CRITICAL        = FATAL
	EXCEPTION Level = 60
	NOLOG     Level = 70
)

var levelNames = map[Level]string{
	NOTSET:    "NOTSET",
	TRACE:     "TRACE",
	DEBUG:     "DEBUG",
	INFO:      "INFO",
	SUCCESS:   "SUCCESS",
	WARNING:   "WARNING",
	ERROR:     "ERROR",
	FATAL:     "FATAL",
	EXCEPTION: "EXCEPTION",
	NOLOG:     "NOLOG",
}

var levelShort = map[Level]string{
	NOTSET:    "NOT",
	TRACE:     "TRC",
	DEBUG:     "DBG",
	INFO:      "INF",
	SUCCESS:   "SUC",
	WARNING:   "WRN",
	ERROR:     "ERR",
	FATAL:     "FTL",
	EXCEPTION: "EXC",
	NOLOG:     "NOL",
}

var levelSym = map[Level]string{
	NOTSET:    "-",
	TRACE:     "T",
	DEBUG:     "D",
	INFO:      "I",
	SUCCESS:   "S",
	WARNING:   "W",
	ERROR:     "E",
	FATAL:     "F",
	EXCEPTION: "X",
	NOLOG:     "-",
}

// LevelSymbolScheme selects how a Level renders in a formatted record.
type LevelSymbolScheme int

const (
	Sym LevelSymbolScheme = iota
	Short
	Str
)

// String renders l under scheme.
func (l Level) String(scheme LevelSymbolScheme) string {
	switch scheme {
	case Short:
		if s, ok := levelShort[nearestLevel(l)]; ok {
			return s
		}
	case Str:
		if s, ok := levelNames[nearestLevel(l)]; ok {
			return s
		}
	default:
		if s, ok := levelSym[nearestLevel(l)]; ok {
			return s
		}
	}
	return fmt.Sprintf("%d", l)
}

// nearestLevel maps an arbitrary level value down to the closest named
// threshold at or below it, for values that fall between the named
// constants.
func nearestLevel(l Level) Level {
	named := []Level{NOLOG, EXCEPTION, FATAL, ERROR, WARNING, SUCCESS, INFO, DEBUG, TRACE, NOTSET}
	for _, n := range named {
		if l >= n {
			return n
		}
	}
	return NOTSET
}

// ParseLevel parses a level name, case-insensitively, accepting any of
// the standard full names plus "CRITICAL" as a FATAL alias.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(name) {
	case "NOTSET":
		return NOTSET, nil
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "SUCCESS":
		return SUCCESS, nil
	case "WARNING", "WARN":
		return WARNING, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL", "CRITICAL":
		return FATAL, nil
	case "EXCEPTION":
		return EXCEPTION, nil
	case "NOLOG":
		return NOLOG, nil
	default:
		return NOTSET, newError(EInvalidValue, "level", "", fmt.Errorf("unknown level %q", name))
	}
}
