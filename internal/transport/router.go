package transport

import "net/http"

type Handler interface {
	create(w http.ResponseWriter, r *http.Request)
	status(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/task/create", r.h.create)
	mux.HandleFunc("/task/status/", r.h.status)

	return mux
}
