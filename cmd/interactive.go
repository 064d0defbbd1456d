package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

type key int

const (
	keyNone key = iota
	keyUp
	keyDown
	keyLeft
	keyRight
	keyEnter
	keyQuit
)

// readKey decodes one keypress from a raw-mode terminal. It understands ANSI
// CSI arrows and the Windows console's 0/224 prefixed scan codes.
func readKey(reader *bufio.Reader) (key, error) {
	b1, err := reader.ReadByte()
	if err != nil {
		return keyQuit, err
	}

	// Windows console arrow sequences (0 or 224, then code)
	if b1 == 0 || b1 == 224 {
		b2, _ := reader.ReadByte()
		switch b2 {
		case 72:
			return keyUp, nil
		case 80:
			return keyDown, nil
		case 75:
			return keyLeft, nil
		case 77:
			return keyRight, nil
		case 13:
			return keyEnter, nil
		}
		return keyNone, nil
	}

	switch b1 {
	case 27: // ESC or ANSI sequence
		if reader.Buffered() == 0 {
			return keyQuit, nil // bare ESC
		}
		b2, _ := reader.ReadByte()
		if b2 != '[' || reader.Buffered() == 0 {
			return keyNone, nil
		}
		b3, _ := reader.ReadByte()
		switch b3 {
		case 'A':
			return keyUp, nil
		case 'B':
			return keyDown, nil
		case 'D':
			return keyLeft, nil
		case 'C':
			return keyRight, nil
		}
	case '\r', '\n':
		return keyEnter, nil
	case 3, 'q': // Ctrl-C
		return keyQuit, nil
	}
	return keyNone, nil
}

// pager tracks the selection in a list shown size rows at a time.
type pager struct {
	n, size        int
	page, selected int
}

func (p *pager) pages() int {
	return (p.n + p.size - 1) / p.size
}

// bounds returns the [start, end) indexes of the current page.
func (p *pager) bounds() (int, int) {
	start := p.page * p.size
	return start, min(start+p.size, p.n)
}

// index returns the selected item's position in the full list.
func (p *pager) index() int {
	return p.page*p.size + p.selected
}

// apply moves the selection and reports whether the view changed.
func (p *pager) apply(k key) bool {
	switch k {
	case keyUp:
		if p.selected > 0 {
			p.selected--
			return true
		}
	case keyDown:
		start, end := p.bounds()
		if p.selected < end-start-1 {
			p.selected++
			return true
		}
	case keyLeft:
		if p.page > 0 {
			p.page--
			p.selected = 0
			return true
		}
	case keyRight:
		if p.page < p.pages()-1 {
			p.page++
			p.selected = 0
			return true
		}
	}
	return false
}

// interactiveSelect presents lines 20 per page. ↑/↓ move within a page, ←/→
// change pages, Enter calls detail for the selected index and Esc exits.
func interactiveSelect(lines []string, detail func(i int)) {
	const pageSize = 20

	if len(lines) == 0 {
		return
	}

	if runtime.GOOS == "windows" {
		enableVT()
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println("(interactive selection not supported on this terminal)")
		return
	}
	defer func() { term.Restore(fd, oldState) }()

	reader := bufio.NewReader(os.Stdin)
	p := &pager{n: len(lines), size: pageSize}

	redraw := func() {
		// Clear screen (ANSI reset to top + clear screen)
		fmt.Print("\033[H\033[2J")
		start, end := p.bounds()
		for i := start; i < end; i++ {
			prefix := "  "
			if i-start == p.selected {
				prefix = "> "
			}
			// Raw mode does not translate \n.
			fmt.Print(prefix + lines[i] + "\r\n")
		}
		fmt.Printf("(↑/↓ navigate, ←/→ page, Enter details, Esc quit)  Page %d/%d\r\n", p.page+1, p.pages())
	}

	redraw()

	for {
		k, err := readKey(reader)
		if err != nil {
			return
		}
		switch k {
		case keyQuit:
			fmt.Print("\r\n")
			return
		case keyEnter:
			term.Restore(fd, oldState) // cooked mode while rendering details
			fmt.Println()
			detail(p.index())

			// Wait for user acknowledgement before returning to list
			fmt.Print("\n(press Enter to return)")
			_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')

			oldState, err = term.MakeRaw(fd)
			if err != nil {
				return
			}
			if runtime.GOOS == "windows" {
				enableVT()
			}
			reader = bufio.NewReader(os.Stdin)
			redraw()
		default:
			if p.apply(k) {
				redraw()
			}
		}
	}
}
