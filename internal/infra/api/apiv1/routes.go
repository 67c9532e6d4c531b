package apiv1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is the contract described in api/openapi.yaml.
type ServerInterface interface {
	// (POST /api/v1/divinations)
	SubmitDivination(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/jobs/{id})
	GetJob(w http.ResponseWriter, r *http.Request, id JobID)
	// (POST /api/v1/jobs/{id}/cancel)
	CancelJob(w http.ResponseWriter, r *http.Request, id JobID)
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper binds path parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler     ServerInterface
	Middlewares []MiddlewareFunc
	ErrorFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, mw := range siw.Middlewares {
		h = mw(h)
	}
	return h
}

func (siw *ServerInterfaceWrapper) SubmitDivination(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.SubmitDivination)).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) bindID(w http.ResponseWriter, r *http.Request) (JobID, bool) {
	var id JobID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err == nil && id == "" {
		err = fmt.Errorf("parameter \"id\" is empty")
	}
	if err != nil {
		siw.ErrorFunc(w, r, fmt.Errorf("invalid format for parameter id: %w", err))
		return "", false
	}
	return id, true
}

func (siw *ServerInterfaceWrapper) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetJob(w, r, id)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.CancelJob(w, r, id)
	})).ServeHTTP(w, r)
}

// RegisterAPIV1 mounts the /api/v1 routes on r. Middlewares run inside the
// route, after path binding.
func RegisterAPIV1(r chi.Router, si ServerInterface, mws ...MiddlewareFunc) {
	w := &ServerInterfaceWrapper{
		Handler:     si,
		Middlewares: mws,
		ErrorFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: http.StatusBadRequest})
		},
	}
	r.Post("/api/v1/divinations", w.SubmitDivination)
	r.Get("/api/v1/jobs/{id}", w.GetJob)
	r.Post("/api/v1/jobs/{id}/cancel", w.CancelJob)
}
