package erp

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
)

// terminados – zbiór zakończonych NV z pliku tekstowego; przeładowywany po zmianie mtime
type terminados struct {
	path  string
	label string

	mu    sync.Mutex
	mtime time.Time
	set   map[string]struct{}
}

func newTerminados(path, label string) *terminados {
	return &terminados{path: path, label: label}
}

// Set – brak pliku = pusty zbiór (nic nie jest zakończone)
func (t *terminados) Set() (map[string]struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path == "" {
		return map[string]struct{}{}, nil
	}
	fi, err := os.Stat(t.path)
	if errors.Is(err, os.ErrNotExist) {
		t.set = map[string]struct{}{}
		return t.set, nil
	}
	if err != nil {
		return nil, err
	}
	if t.set != nil && fi.ModTime().Equal(t.mtime) {
		return t.set, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set, err := readTerminados(f, t.label)
	if err != nil {
		return nil, err
	}
	t.set, t.mtime = set, fi.ModTime()
	return set, nil
}

func readTerminados(r io.Reader, label string) (map[string]struct{}, error) {
	if label != "" {
		cr, err := charset.NewReaderLabel(normalizeCharset(label), r)
		if err != nil {
			return nil, err
		}
		r = cr
	}
	out := map[string]struct{}{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		// BOM z Notatnika
		v := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out, sc.Err()
}

// normalizeCharset mapuje nietypowe etykiety na standardowe nazwy rozpoznawane przez charset.NewReaderLabel
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	case "cp1252", "windows1252", "win-1252", "ansi":
		return "windows-1252"
	case "utf8":
		return "utf-8"
	default:
		return c
	}
}
