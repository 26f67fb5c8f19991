package codec

import (
	"strconv"
	"strings"
)

// numState is a state of the numeric-prefix recognizer.
type numState int

const (
	numStart numState = iota
	numSign
	numInt
	numIntDot
	numDot
	numFrac
	numExp
	numExpSign
	numExpDigits
	numStop
)

func (s numState) accepting() bool {
	switch s {
	case numInt, numIntDot, numFrac, numExpDigits:
		return true
	default:
		return false
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (s numState) next(c byte) numState {
	switch s {
	case numStart:
		switch {
		case c == '+' || c == '-':
			return numSign
		case isDigit(c):
			return numInt
		case c == '.':
			return numDot
		}
	case numSign:
		switch {
		case isDigit(c):
			return numInt
		case c == '.':
			return numDot
		}
	case numInt:
		switch {
		case isDigit(c):
			return numInt
		case c == '.':
			return numIntDot
		case c == 'e' || c == 'E':
			return numExp
		}
	case numIntDot, numFrac:
		switch {
		case isDigit(c):
			return numFrac
		case c == 'e' || c == 'E':
			return numExp
		}
	case numDot:
		if isDigit(c) {
			return numFrac
		}
	case numExp:
		switch {
		case c == '+' || c == '-':
			return numExpSign
		case isDigit(c):
			return numExpDigits
		}
	case numExpSign, numExpDigits:
		if isDigit(c) {
			return numExpDigits
		}
	}

	return numStop
}

// floatPrefix returns the length of the longest decimal floating-point
// literal at the start of s, or 0 if there is none. An exponent marker is
// only part of the literal when at least one exponent digit follows it.
func floatPrefix(s string) int {
	state := numStart
	end := 0
	for i := 0; i < len(s); i++ {
		state = state.next(s[i])
		if state == numStop {
			break
		}
		if state.accepting() {
			end = i + 1
		}
	}

	return end
}

// uintPrefix returns the length of an optional '+' followed by the longest
// run of decimal digits at the start of s, or 0 if no digit follows.
func uintPrefix(s string) int {
	i := 0
	if i < len(s) && s[i] == '+' {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return 0
	}

	return i
}

func skipBlanks(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}

// scanner looks fields up in a single raw record. The first occurrence of a
// key wins.
type scanner struct {
	src string
}

// valueAfter returns the text immediately following the first `"key":`.
func (sc scanner) valueAfter(key string) (string, bool) {
	marker := `"` + key + `":`
	pos := strings.Index(sc.src, marker)
	if pos < 0 {
		return "", false
	}

	return sc.src[pos+len(marker):], true
}

func (sc scanner) stringField(key string) (string, error) {
	marker := `"` + key + `":"`
	pos := strings.Index(sc.src, marker)
	if pos < 0 {
		return "", missing(key)
	}

	rest := sc.src[pos+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", malformed(key, nil)
	}

	return rest[:end], nil
}

func (sc scanner) floatField(key string) (float64, error) {
	rest, ok := sc.valueAfter(key)
	if !ok {
		return 0, missing(key)
	}

	rest = skipBlanks(rest)
	n := floatPrefix(rest)
	if n == 0 {
		return 0, malformed(key, nil)
	}

	v, err := strconv.ParseFloat(rest[:n], 64)
	if err != nil {
		return 0, malformed(key, err)
	}

	return v, nil
}

func (sc scanner) uintField(key string) (uint64, error) {
	rest, ok := sc.valueAfter(key)
	if !ok {
		return 0, missing(key)
	}

	rest = skipBlanks(rest)
	n := uintPrefix(rest)
	if n == 0 {
		return 0, malformed(key, nil)
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(rest[:n], "+"), 10, 64)
	if err != nil {
		return 0, malformed(key, err)
	}

	return v, nil
}
