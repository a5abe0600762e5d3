package httpapi

import (
	"net/http"

	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/services/books"
)

type bookListResponse struct {
	Books   []bookView `json:"books"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

func (h *handler) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := book.Filter{
		Genre:   q.Get("genre"),
		Search:  q.Get("search"),
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", 20),
	}.Normalize()

	list, total, err := h.app.Books.List(r.Context(), filter)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, bookListResponse{
		Books:   toBookViews(list),
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	})
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.app.Books.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBookView(b))
}

type createBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	TotalPages  int    `json:"total_pages"`
	ISBN        string `json:"isbn"`
}

func (h *handler) createBook(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req createBookRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	created, err := h.app.Books.Create(r.Context(), p, books.CreateInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Genre:       req.Genre,
		TotalPages:  req.TotalPages,
		ISBN:        req.ISBN,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toBookView(created))
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Genre       *string `json:"genre"`
	TotalPages  *int    `json:"total_pages"`
	ISBN        *string `json:"isbn"`
}

func (h *handler) updateBook(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req updateBookRequest
	if err := h.decode(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	updated, err := h.app.Books.Update(r.Context(), p, pathVar(r, "id"), books.UpdateInput{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Genre:       req.Genre,
		TotalPages:  req.TotalPages,
		ISBN:        req.ISBN,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBookView(updated))
}

func (h *handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	if err := h.app.Books.Delete(r.Context(), p, pathVar(r, "id")); err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) uploadCover(w http.ResponseWriter, r *http.Request) {
	p, err := h.currentProfile(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	updated, err := h.app.Uploads.StoreBookCover(r.Context(), p, pathVar(r, "id"), r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBookView(updated))
}
