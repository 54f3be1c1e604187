// Package agent answers SNMPv3 GET, GETNEXT and GETBULK requests from the
// OID index.
package agent

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/mancow2001/ntx-custom-monitor/internal/oid"
)

// MaxBulkRepetitions caps max-repetitions of a single GETBULK.
const MaxBulkRepetitions = 64

// PDUKind is the request operation.
type PDUKind int

const (
	Get PDUKind = iota + 1
	GetNext
	GetBulk
)

func (k PDUKind) String() string {
	switch k {
	case Get:
		return "get"
	case GetNext:
		return "getnext"
	case GetBulk:
		return "getbulk"
	default:
		return "unknown"
	}
}

// Exception marks a variable binding that carries no value.
type Exception int

const (
	NoException Exception = iota
	NoSuchObject
	NoSuchInstance
	EndOfMibView
)

// Request is a decoded query. Names are kept as received so malformed ones
// can be answered rather than dropped.
type Request struct {
	Kind           PDUKind
	Names          []string
	NonRepeaters   int
	MaxRepetitions int
}

// VarBind is one answered variable. Name echoes the requested name for
// exceptions on GET and holds the resolved OID otherwise.
type VarBind struct {
	Name      string
	Value     oid.Value
	Exception Exception
}

// Stats is a point-in-time copy of the responder counters.
type Stats struct {
	Requests    uint64    `json:"requests"`
	Denied      uint64    `json:"denied"`
	LastRequest time.Time `json:"last_request,omitzero"`
}

// Responder resolves requests against an index. It holds no locks; all
// counters are atomics.
type Responder struct {
	index *oid.Index
	allow *AllowList
	now   func() time.Time

	requests    atomic.Uint64
	denied      atomic.Uint64
	lastRequest atomic.Int64
}

// NewResponder returns a responder. A nil allow-list permits every client
// and a nil clock defaults to time.Now.
func NewResponder(index *oid.Index, allow *AllowList, now func() time.Time) *Responder {
	if now == nil {
		now = time.Now
	}
	return &Responder{index: index, allow: allow, now: now}
}

// Index returns the index the responder reads.
func (r *Responder) Index() *oid.Index { return r.index }

// Allowed applies the allow-list and counts rejections.
func (r *Responder) Allowed(addr netip.Addr) bool {
	if r.allow.Allows(addr) {
		return true
	}
	r.denied.Add(1)
	deniedTotal.Inc()
	return false
}

// Handle answers req. It never fails: unresolvable names become exception
// bindings.
func (r *Responder) Handle(req Request) []VarBind {
	r.requests.Add(1)
	r.lastRequest.Store(r.now().UnixNano())
	requestsTotal.WithLabelValues(req.Kind.String()).Inc()

	switch req.Kind {
	case Get:
		return r.get(req.Names)
	case GetNext:
		return r.getNext(req.Names)
	case GetBulk:
		return r.getBulk(req)
	default:
		out := make([]VarBind, len(req.Names))
		for i, n := range req.Names {
			out[i] = VarBind{Name: n, Exception: NoSuchObject}
		}
		return out
	}
}

func (r *Responder) get(names []string) []VarBind {
	out := make([]VarBind, len(names))
	for i, name := range names {
		out[i] = VarBind{Name: name, Exception: NoSuchInstance}
		o, err := oid.Parse(name)
		if err != nil {
			continue
		}
		if v, ok := r.index.Get(o); ok {
			out[i] = VarBind{Name: o.String(), Value: v}
		}
	}
	return out
}

func (r *Responder) getNext(names []string) []VarBind {
	out := make([]VarBind, len(names))
	for i, name := range names {
		out[i] = r.next(name)
	}
	return out
}

func (r *Responder) next(name string) VarBind {
	o, err := oid.Parse(name)
	if err != nil {
		return VarBind{Name: name, Exception: EndOfMibView}
	}
	n, v, ok := r.index.GetNext(o)
	if !ok {
		return VarBind{Name: o.String(), Exception: EndOfMibView}
	}
	return VarBind{Name: n.String(), Value: v}
}

// getBulk follows RFC 3416 section 4.2.3: the first non-repeaters names get
// one GETNEXT each, the rest are walked max-repetitions times, interleaved
// by repetition. Walking stops early once every repeater hit the end.
func (r *Responder) getBulk(req Request) []VarBind {
	nonRep := min(max(req.NonRepeaters, 0), len(req.Names))
	reps := min(max(req.MaxRepetitions, 0), MaxBulkRepetitions)

	out := make([]VarBind, 0, nonRep+reps*(len(req.Names)-nonRep))
	for _, name := range req.Names[:nonRep] {
		out = append(out, r.next(name))
	}

	cursors := append([]string(nil), req.Names[nonRep:]...)
	if len(cursors) == 0 {
		return out
	}
	for range reps {
		ended := 0
		for i, cur := range cursors {
			vb := r.next(cur)
			out = append(out, vb)
			if vb.Exception == EndOfMibView {
				ended++
			}
			cursors[i] = vb.Name
		}
		if ended == len(cursors) {
			break
		}
	}
	return out
}

// Stats returns the request counters.
func (r *Responder) Stats() Stats {
	st := Stats{
		Requests: r.requests.Load(),
		Denied:   r.denied.Load(),
	}
	if ns := r.lastRequest.Load(); ns != 0 {
		st.LastRequest = time.Unix(0, ns)
	}
	return st
}
