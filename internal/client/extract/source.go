package extract

import "fmt"

// Source is a client-side storage location probed for credentials.
type Source int

const (
	SourceCookies Source = iota
	SourceLocalStorage
	SourceSessionStorage
	SourceGlobals
)

// Order is the fixed probe precedence.
var Order = []Source{SourceCookies, SourceLocalStorage, SourceSessionStorage, SourceGlobals}

var sourceNames = map[Source]string{
	SourceCookies:        "cookies",
	SourceLocalStorage:   "localStorage",
	SourceSessionStorage: "sessionStorage",
	SourceGlobals:        "globals",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// ParseSource is the inverse of Source.String.
func ParseSource(name string) (Source, bool) {
	for s, n := range sourceNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}
