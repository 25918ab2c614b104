// Package evreg keeps application callbacks keyed by event id. Callbacks run
// synchronously, in registration order, on the goroutine that emits.
package evreg

import "container/list"

// The zero register is empty and ready for use.
type Register struct {
	m map[int]*list.List
}

// Remove is done via *Regist.Unregister().
func (reg *Register) Add(evId int, fn func(ev any)) *Regist {
	if reg.m == nil {
		reg.m = map[int]*list.List{}
	}
	l, ok := reg.m[evId]
	if !ok {
		l = list.New()
		reg.m[evId] = l
	}
	e := l.PushBack(fn)
	return &Regist{reg: reg, id: evId, elem: e}
}

func (reg *Register) remove(evId int, e *list.Element) {
	l, ok := reg.m[evId]
	if !ok {
		return
	}
	l.Remove(e)
	if l.Len() == 0 {
		delete(reg.m, evId)
	}
}

// Emit returns the number of callbacks run. A callback may unregister
// itself while running.
func (reg *Register) Emit(evId int, ev any) int {
	l, ok := reg.m[evId]
	if !ok {
		return 0
	}
	c := 0
	for e := l.Front(); e != nil; {
		next := e.Next()
		e.Value.(func(any))(ev)
		c++
		e = next
	}
	return c
}

func (reg *Register) NCallbacks(evId int) int {
	if l, ok := reg.m[evId]; ok {
		return l.Len()
	}
	return 0
}

//----------

type Regist struct {
	reg  *Register
	id   int
	elem *list.Element
}

func (r *Regist) Unregister() {
	if r.elem == nil {
		return
	}
	r.reg.remove(r.id, r.elem)
	r.elem = nil
}

//----------

// Utility to unregister big number of regists.
type Unregister struct {
	v []*Regist
}

func (unr *Unregister) Add(u ...*Regist) {
	unr.v = append(unr.v, u...)
}

func (unr *Unregister) UnregisterAll() {
	for _, e := range unr.v {
		e.Unregister()
	}
	unr.v = nil
}
