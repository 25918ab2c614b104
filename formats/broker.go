// Package formats interns format lists into the display wide table kept on
// the broker window. The index into that table is what drag messages carry
// instead of the list itself.
package formats

import (
	"sort"
	"sync"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/wire"
	"github.com/pkg/errors"
)

var (
	ErrBrokerUnavailable = errors.New("formats: broker window unavailable")
	ErrListTooLong       = errors.New("formats: format list too long")
)

type Broker struct {
	d     display.Display
	atoms struct {
		DragWindow display.Atom `loadAtoms:"_MOTIF_DRAG_WINDOW"`
		Targets    display.Atom `loadAtoms:"_MOTIF_DRAG_TARGETS"`
		Window     display.Atom `loadAtoms:"WINDOW"`
	}

	mu     sync.Mutex
	broker display.Window // cached, revalidated on use

	OnRecreate func() // called when a new broker window is created
}

func NewBroker(d display.Display) (*Broker, error) {
	b := &Broker{d: d}
	if err := display.LoadAtoms(d, &b.atoms); err != nil {
		return nil, err
	}
	return b, nil
}

//----------

// Canonical returns a sorted copy of l without duplicates.
func Canonical(l []uint32) []uint32 {
	u := make([]uint32, len(l))
	copy(u, l)
	sort.Slice(u, func(i, j int) bool { return u[i] < u[j] })
	k := 0
	for i, f := range u {
		if i > 0 && f == u[k-1] {
			continue
		}
		u[k] = f
		k++
	}
	return u[:k]
}

//----------

// Intern returns the index of the canonical form of l, appending it to
// the shared table if no other client has done so already.
func (b *Broker) Intern(l []uint32) (int, error) {
	canon := Canonical(l)
	if len(canon) > wire.MaxListLen {
		return 0, errors.Wrapf(ErrListTooLong, "%d formats", len(canon))
	}

	// fast path, no exclusive section
	if tab, err := b.readTable(); err == nil {
		if i := indexOf(tab.Lists, canon); i >= 0 {
			return i, nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	index := -1
	err := b.d.WithExclusiveSection(func() error {
		// the table may have changed since it was last read
		tab, err := b.readTableLocked()
		if err != nil {
			tab = &wire.FormatListTable{}
		}
		if i := indexOf(tab.Lists, canon); i >= 0 {
			index = i
			return nil
		}
		if len(tab.Lists) >= wire.MaxTableEntries {
			return errors.New("formats: table full")
		}
		tab.Lists = append(tab.Lists, canon)
		tab.Order = 0 // native
		tab.Version = wire.ProtocolVersion
		if err := b.writeTable(tab); err != nil {
			return err
		}
		index = len(tab.Lists) - 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// Lookup returns the format list stored at index.
func (b *Broker) Lookup(index int) ([]uint32, error) {
	tab, err := b.readTable()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(tab.Lists) {
		return nil, errors.Errorf("formats: index out of range: %d", index)
	}
	return tab.Lists[index], nil
}

// Table returns the current shared table.
func (b *Broker) Table() (*wire.FormatListTable, error) {
	return b.readTable()
}

//----------

func (b *Broker) readTable() (*wire.FormatListTable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readTableLocked()
}

func (b *Broker) readTableLocked() (*wire.FormatListTable, error) {
	win, err := b.findBroker()
	if err != nil {
		return nil, err
	}
	p, err := b.d.GetProperty(win, b.atoms.Targets)
	if err != nil {
		if errors.Cause(err) == display.ErrNoProperty {
			return &wire.FormatListTable{}, nil
		}
		return nil, errors.Wrap(err, "formats: read table")
	}
	return wire.DecodeFormatListTable(p.Value)
}

// Must be called inside the exclusive section.
func (b *Broker) writeTable(tab *wire.FormatListTable) error {
	prop := &display.Property{Type: b.atoms.Targets, Format: 8, Value: tab.Encode()}

	win, err := b.findBroker()
	if err == nil {
		err = b.d.SetProperty(win, b.atoms.Targets, prop)
		if err == nil {
			return nil
		}
	}

	// broker missing or gone: one retry on a brand new window
	win, err2 := b.createBroker()
	if err2 != nil {
		return errors.Wrap(ErrBrokerUnavailable, err2.Error())
	}
	if err := b.d.SetProperty(win, b.atoms.Targets, prop); err != nil {
		return errors.Wrap(ErrBrokerUnavailable, err.Error())
	}
	return nil
}

//----------

func (b *Broker) findBroker() (display.Window, error) {
	if b.broker != display.None && b.d.WindowExists(b.broker) {
		return b.broker, nil
	}
	b.broker = display.None
	p, err := b.d.GetProperty(b.d.Root(), b.atoms.DragWindow)
	if err != nil {
		return display.None, errors.Wrap(err, "formats: broker window")
	}
	u := p.Uint32s()
	if len(u) == 0 {
		return display.None, errors.New("formats: bad broker window property")
	}
	win := display.Window(u[0])
	if !b.d.WindowExists(win) {
		return display.None, display.ErrBadWindow
	}
	b.broker = win
	return win, nil
}

func (b *Broker) createBroker() (display.Window, error) {
	win, err := b.d.CreateHiddenWindow()
	if err != nil {
		return display.None, err
	}
	prop := &display.Property{Type: b.atoms.Window, Format: 32, Value: display.Prop32(uint32(win))}
	if err := b.d.SetProperty(b.d.Root(), b.atoms.DragWindow, prop); err != nil {
		return display.None, err
	}
	b.broker = win
	if fn := b.OnRecreate; fn != nil {
		fn()
	}
	return win, nil
}

//----------

func indexOf(lists [][]uint32, l []uint32) int {
	for i, l2 := range lists {
		if equal(l2, l) {
			return i
		}
	}
	return -1
}

func equal(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
