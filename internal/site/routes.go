package site

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
)

type handlers struct {
	store    *Store
	renderer *Renderer
}

// Routes returns the site router. cacheAdmin, if not nil, is mounted at /admin/cache.
//
// Saving a page answers with Cache-Update headers naming its section and the index,
// so a cache in front of the site drops the outdated listings and pages.
func Routes(store *Store, renderer *Renderer, cacheAdmin http.Handler) http.Handler {
	h := handlers{store: store, renderer: renderer}
	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Get("/", h.index)
	r.Get("/{section}", h.section)
	r.Get("/{section}/{slug}", h.page)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/pages/{section}/{slug}", h.save)
		if cacheAdmin != nil {
			r.Mount("/cache", cacheAdmin)
		}
	})
	return r
}

func (h handlers) index(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.List(r.Context(), "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "index", View{Title: "Latest pages", Pages: pages})
}

func (h handlers) section(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	pages, err := h.store.List(r.Context(), section)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(pages) == 0 {
		h.fail(w, r, ErrNotFound)
		return
	}
	h.render(w, r, http.StatusOK, "section", View{Title: section, Pages: pages})
}

func (h handlers) page(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Page(r.Context(), chi.URLParam(r, "section"), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	content, err := h.renderer.Markdown(p.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "page", View{Title: p.Title, Content: content})
}

func (h handlers) save(w http.ResponseWriter, r *http.Request) {
	p := Page{
		Section: chi.URLParam(r, "section"),
		Slug:    chi.URLParam(r, "slug"),
		Title:   r.FormValue("title"),
		Body:    r.FormValue("body"),
	}
	if p.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if err := h.store.Save(r.Context(), p); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("page", p.Path()).Msg("Could not save page")
		http.Error(w, "Could not save page", http.StatusInternalServerError)
		return
	}
	hlog.FromRequest(r).Info().Str("page", p.Path()).Msg("Page saved")
	w.Header().Add("Cache-Update", "/"+p.Section)
	// the index lists the latest pages, but "/" as a prefix would be everything
	w.Header().Add("Cache-Update", "/; exact")
	http.Redirect(w, r, p.Path(), http.StatusSeeOther)
}

func (h handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, view View) {
	sections, err := h.store.Sections(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Could not list sections")
	}
	view.Sections = sections
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, name, view); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("view", name).Msg("Could not render view")
		http.Error(w, "Could not render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", "en")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		h.render(w, r, http.StatusNotFound, "error", View{Title: "Not found"})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("Could not load page")
	h.render(w, r, http.StatusInternalServerError, "error", View{Title: "Something went wrong"})
}
