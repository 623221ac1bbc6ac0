package lxi

import (
	"github.com/arloliu/go-lxi/vxi11"
	"github.com/puzpuzpuz/xsync/v3"
)

// Handle is an opaque reference to a session held by a Client. The zero Handle is never issued.
type Handle uint64

// Registry maps handles to sessions. Implementations must be safe for concurrent use.
type Registry interface {
	Put(h Handle, sess *vxi11.Session)
	Get(h Handle) (*vxi11.Session, bool)
	Delete(h Handle) (*vxi11.Session, bool)
	Len() int
	Range(f func(h Handle, sess *vxi11.Session) bool)
}

type mapRegistry struct {
	sessions *xsync.MapOf[Handle, *vxi11.Session]
}

// NewRegistry returns an empty Registry backed by a concurrent map.
func NewRegistry() Registry {
	return &mapRegistry{sessions: xsync.NewMapOf[Handle, *vxi11.Session]()}
}

func (r *mapRegistry) Put(h Handle, sess *vxi11.Session) {
	r.sessions.Store(h, sess)
}

func (r *mapRegistry) Get(h Handle) (*vxi11.Session, bool) {
	return r.sessions.Load(h)
}

func (r *mapRegistry) Delete(h Handle) (*vxi11.Session, bool) {
	return r.sessions.LoadAndDelete(h)
}

func (r *mapRegistry) Len() int {
	return r.sessions.Size()
}

func (r *mapRegistry) Range(f func(h Handle, sess *vxi11.Session) bool) {
	r.sessions.Range(f)
}
